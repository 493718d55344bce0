// Package mkr5 implements a host-side controller for MKR-5/DART fuel
// dispenser pumps over a multi-drop RS-485 line: frame/CRC codec,
// request/reply transport with echo suppression and sequence bits, and a
// PumpMaster scheduler that drives the startup sequence, polls pumps in
// round robin, and exposes a State Store and a bounded event queue.
package mkr5
