// Package model provides the subscription record shared by the push core,
// the store and the callback endpoint.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal.
//
// Key design constraints:
//   - Identity is the (Hub, Topic) pair; ID is the persisted identifier the
//     store assigns on insert and the value verify tokens bind to
//   - One subscription per feed (FeedID is unique)
//   - Records are never hard-deleted by the core; hub denial and
//     unsubscribe clear Active instead
package model
