// Package resource bounds the memory, IO concurrency and IO bandwidth an
// oodb instance may consume.
//
// A nil *Controller is valid and imposes no limits, so components accept an
// optional controller without nil checks at call sites.
package resource
