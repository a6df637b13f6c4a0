// Package logx is tsched's structured logging wrapper.
//
// logx.Logger sits on top of zerolog and keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Live reconfiguration through Service.Apply
package logx
