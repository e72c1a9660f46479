// Package udp wires together the framed datagram receiver, the per-peer
// client table, and the reply queue into the three long-lived loops a
// RADIUS UDP transport needs: one listener per bound socket, one upstream
// reader per pooled outbound socket, and one reply writer per listener.
package udp
