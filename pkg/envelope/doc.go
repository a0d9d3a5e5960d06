// Package envelope encodes and decodes the wire form of a unit of work.
//
// An envelope travels as the JSON text of a four element array:
//
//	[job_name, args, style_flag, style_opts]
//
// where args and style_opts are JSON objects and style_flag selects the
// extended calling convention. Payloads written by older producers that
// only carry [job_name, args] decode as classic style.
package envelope
