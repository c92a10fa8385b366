// ABOUTME: Dozclock time wire protocol package
// ABOUTME: Defines protocol messages and the WebSocket time client
// Package protocol implements the dozclock time protocol.
//
// A clock connects to a time server over WebSocket, introduces itself with
// client/hello and then exchanges client/time and server/time messages.
// Each exchange yields the four timestamps of an NTP-style offset
// measurement. All timestamps are Unix microseconds.
//
// Example:
//
//	c := protocol.NewClient(protocol.Config{ServerAddr: "clock.local:8928", ClientID: id, Name: "kitchen"}, log)
//	if err := c.Connect(ctx); err != nil {
//		return err
//	}
//	defer c.Close()
//	t1, t2, t3, t4, err := c.ExchangeTime(ctx)
package protocol
