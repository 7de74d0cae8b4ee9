// Package filaswitch provides an embeddable controller for a BAFSD-style
// filament port switch: several filament spools share one extruder and a
// switching mechanism selects which one feeds it.
//
// # Basic Usage
//
//	cfg := filaswitch.DefaultConfig()
//	cfg.PrinterDevice = "/dev/ttyACM0"
//	cfg.PeripheralDevice = "/dev/ttyUSB0"
//
//	sw, err := filaswitch.New(cfg, filaswitch.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := sw.Start(ctx); err != nil {
//	    return err
//	}
//	defer sw.Stop()
//
//	if err := sw.Select(ctx, 2); err != nil {
//	    return err
//	}
//
// # Variants
//
// The protocol variant talks to a switching peripheral over a serial link
// ("T<n>" to select, "M412" to query the filament sensor). The local
// variant drives a servo and reads a presence switch through a Modbus TCP
// I/O module; its per-port servo angles can be edited at runtime with
// "M281 A<deg> B<deg> ..." and are saved to the config file.
//
// With Config.Simulate set, both variants run against an in-process bench
// instead of hardware.
//
// # Requests
//
// [Switch.Execute] accepts the console request lines: "T<n>", "M412",
// "M709", "M240 D<ms>", "M281 ..." and "status". Requests run one at a
// time; while a tool change is in flight only "status" is answered and
// everything else fails with [ErrSwitchInProgress].
//
// # Plugins and Events
//
// Plugins registered with [WithPlugin] are initialized by Start in
// registration order and shut down by Stop in reverse order. Phase changes
// of each tool change are delivered to the [EventHandler] set with
// [WithEventHandler].
package filaswitch
