// Package waitset lets application goroutines block on heterogeneous sets of
// asynchronous event sources over an embedded NATS transport.
//
// A Session owns the embedded nats-server and client connection. Entities
// created from it (subscribers, publishers, guard conditions, request/reply
// clients and services) each carry a condition that can be attached to a
// WaitSet. A WaitSet performs one blocking multiplexed wait per call and
// reports which of the attached entities are ready:
//
//	s, err := waitset.New(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close(ctx)
//
//	sub, err := s.NewSubscriber("sensor.readings")
//	if err != nil {
//		log.Fatal(err)
//	}
//	ws := s.NewWaitSet()
//
//	w := &waitset.Waitables{Subscribers: []*waitset.Subscriber{sub}}
//	if err := ws.Wait(w, time.Second); err == nil {
//		var reading Reading
//		var info message.Info
//		taken, _ := sub.TakeMessage(&reading, &info)
//		...
//	}
//
// Subscribers deliver buffered samples through a windowed loan pipeline: a
// batch is pulled from the transport, filtered and handed out incrementally,
// and returned automatically once exhausted.
//
// The Client and Service types correlate request/reply pairs on top of the
// same machinery. Requests are stamped with the client's 16-byte writer
// identity and a monotone sequence number; the reply subscription is narrowed
// so a client only ever observes replies addressed to its own requests.
package waitset
