// Package logx is the logging kit: a thin Logger over zerolog with closure
// fields and per-component tagging, backed by a Service whose sinks
// (console, JSON, file) and level can be swapped at runtime by the config
// reload.
package logx
