// Package rosbridge subscribes to live topics on a rosbridge websocket
// server.
//
// The source speaks the JSON side of the rosbridge v2 protocol: it sends one
// {"op":"subscribe","topic":..} frame per configured topic after dialing and
// consumes {"op":"publish","topic":..,"msg":{..}} frames. Other ops (status,
// service traffic) are ignored. Fragmented and compressed frames are not
// handled; the server must be left in its default JSON mode.
//
// rosbridge publish frames carry no type identity, so the record type and
// schema hash are inferred from the message shape. A configured type name per
// topic overrides the inferred name and is also sent with the subscribe op.
// Messages with a header stamp keep it as the record stamp; unstamped
// messages use the receive time.
//
// The connection is dialed on the first Next call. Stop sends an unsubscribe
// per topic and closes the connection.
package rosbridge
