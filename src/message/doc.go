// Package message defines the wire contract between nodes.
//
// Every message is an Envelope with a source, a destination and a body. The
// body is a JSON object that always carries a "type" tag. Requests carry a
// "msg_id" assigned by the sender; replies carry "in_reply_to", equal to the
// msg_id of the request they answer.
//
//	{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":1,"echo":"hi"}}
//	{"src":"n1","dest":"c1","body":{"type":"echo_ok","msg_id":1,"in_reply_to":1,"echo":"hi"}}
//
// Concrete bodies embed Header and implement Body by declaring their type tag
// with MessageType. Failures travel as Error bodies and surface to callers as
// RPCError values.
package message
