// Package webhook receives signed webhook deliveries and emits them as events.
//
// A Handler sits in front of an HTTP handler chain. POST requests to its
// configured path are authenticated and decoded; every other request is
// passed to the next handler untouched.
//
// # Security Model
//
// - The signature header carries "<algo>=<hex digest>" computed over the raw body
// - Signatures are compared with crypto/subtle (constant-time comparison)
// - A mismatch is reported with a generic message, never with the expected value
// - An empty secret disables verification entirely
// - Body size is capped with http.MaxBytesReader
//
// Only the final comparison is constant time. Timing of the hash computation
// itself is not hidden.
//
// # Request Flow
//
//  1. Method is POST and path (ignoring the query) equals Config.Path, else pass through
//  2. Delivery id header present ("No id found in the request")
//  3. Event header present ("No event found in the request")
//  4. With a secret, signature header present ("No signature found in the request")
//  5. Body read, or taken from WithDecodedPayload ("Make sure body-parser is used")
//     A decoded payload is verified over its compact JSON with sorted keys and
//     no HTML escaping, so only senders that sign that form can use this path.
//  6. With a secret, signature verified ("Failed to verify signature")
//  7. Payload parsed as a JSON object; form bodies carry it in the "payload" field
//  8. Event emitted under "*", the event type and the repository name; 200 {"success":true}
//
// An empty source is not emitted. Neither is a source named "*": listeners on
// the wildcard key receive each event exactly once.
//
// Any failed step answers 400 {"error":"<message>"} and notifies the
// emitter's error listeners.
//
// # Example Usage
//
//	bus := events.NewBus(logger, 0)
//	defer bus.Close()
//	bus.On("push", func(ctx context.Context, ev events.Event) {
//		logger.Info("push received", "repo", ev.Source)
//	})
//
//	h, err := webhook.New(webhook.Config{
//		Path:   "/webhook",
//		Secret: os.Getenv("HOOKBUS_SECRET"),
//	}, bus, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", h.Middleware(mux))
package webhook
