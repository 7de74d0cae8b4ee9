// Package ports defines the interfaces that connect the tool-change core
// to the hardware and printer around it.
//
// The core (internal/link, internal/transport, internal/app) depends only
// on these interfaces. Adapters under internal/adapters implement them
// over serial links, G-code and Modbus.
//
// # Port Interfaces
//
//   - [SerialChannel]: byte channel to the switching peripheral
//   - [Clock]: monotonic time and the cooperative idle step
//   - [PresenceSensor]: filament presence at the sensor
//   - [PortActuator]: commits the accessory to a port
//   - [Motion]: extruder moves and the synchronization barrier
//   - [Servo]: angle-based actuator of the local variant
//   - [DigitalInput]: local presence input
//   - [PrintControl]: pause, operator confirmation, resume
//   - [Thermometer]: hotend temperature for the extrusion precondition
//   - [StatusReporter]: advisory single-line status messages
package ports
