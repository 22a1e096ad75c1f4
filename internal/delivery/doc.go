// Package delivery drives a WhatsApp Web browser session to send a text or
// image to a batch of recipients.
//
// The remote UI's markup drifts between releases, so nothing here assumes a
// single selector or a single click technique: each logical control has an
// ordered list of locator strategies (resolver.go) and each action an
// ordered list of invocation techniques (invoker.go). One session serves a
// whole batch; a recipient's failure is isolated, captured, and the batch
// moves on.
package delivery
