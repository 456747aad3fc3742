// Package push implements the subscriber side of the PubSubHubbub (WebSub)
// handshake.
//
// Components:
//   - TokenGenerator: derives verify tokens bound to a subscription ID and a
//     mode from an injected secret
//   - Manager: subscribe and unsubscribe handshakes against a hub
//   - Verifier: inbound callback validation and state transitions
//
// Subscribe flow:
//  1. Resolve the hub from the topic when the caller supplies none
//  2. Get-or-create the (hub, topic) record; notify PreSubscribe
//  3. Set the lease expiration and persist
//  4. Derive the callback URL and generate a subscribe token; persist
//  5. POST hub.mode=subscribe to the hub
//  6. 204 marks the record verified, 202 leaves it pending, anything else
//     is recorded as a failure without returning an error
//  7. Persist, call Feed.SetupPush, notify Verified when verified
//
// Persistence, hub discovery and HTTP routing live behind the Store,
// HubResolver and Doer interfaces; see internal/store, internal/discovery
// and internal/callback for the implementations used by the CLI.
package push
