// Package evidence defines the ports through which the trigger engine
// reads the current state of each evidence producer.
//
// Every port is a snapshot query per user, not a subscription: producers
// own ingestion, verification, and storage; the engine only asks "what is
// active right now". Port models are domain structs, not transport or
// database models, so the engine stays free of producer implementations.
package evidence
