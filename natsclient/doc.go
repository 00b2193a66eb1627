// Package natsclient manages NATS connections for grepbag with circuit
// breaker protection and health monitoring.
//
// The live NATS source and the NATS sink both hold a single shared *Client.
// The client wraps nats.Conn with connection lifecycle management so
// component code never deals with raw reconnect handling.
//
// # Connecting
//
// Create a client with functional options, then connect with a context:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithName("grepbag"),
//		natsclient.WithTimeout(5*time.Second),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(ctx)
//
// Connect fails fast with ErrCircuitOpen once five consecutive attempts
// have failed. The circuit reopens for a test attempt after an exponential
// backoff capped at one minute.
//
// # Consuming and publishing
//
// Subscribe delivers messages to a handler on the NATS dispatch goroutine.
// SubscribeSync returns a synchronous subscription for pull-style reads,
// which is what a record source wants:
//
//	sub, err := client.SubscribeSync("bag.records.>")
//	if err != nil {
//		return err
//	}
//	msg, err := sub.NextMsgWithContext(ctx)
//
// Publish sends on a subject. Flush blocks until buffered outbound
// messages have reached the server, which sinks call before reporting a
// commit as durable.
//
// All subscriptions created through the client are unsubscribed when
// Close drains the connection.
//
// # Health and metrics
//
// The client polls connection health on a configurable interval and
// reports transitions through WithHealthChangeCallback. Passing a metrics
// registry with WithMetrics keeps the nats_connected and nats_rtt gauges
// and the nats_reconnects counter current.
//
// # Testing
//
// NewTestClient starts a disposable NATS server in a container and tears
// it down with the test:
//
//	tc := natsclient.NewTestClient(t)
//	err := tc.Client.Publish(ctx, "test.subject", []byte("data"))
//
// NewSharedTestClient is the TestMain variant that returns errors instead
// of failing a testing.T.
package natsclient
