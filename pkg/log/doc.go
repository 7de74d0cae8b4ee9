// Package log provides the logging abstraction used by filaswitch components.
//
// Components depend on the Logger interface only. The zerolog adapter is
// what the command line tool wires in; the no-op logger is the library
// default and is handy in tests.
//
//	logger := log.NewZerologAdapter(zerolog.InfoLevel)
//	logger.Info("port engaged", log.Stringer("port", port))
//
// Scoped loggers carry a fixed set of fields:
//
//	linkLog := log.With(logger, log.String("component", "link"))
package log
