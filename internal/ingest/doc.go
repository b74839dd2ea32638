// Package ingest turns the broker's switch feed into hub events.
//
// Every message on switches/# is run through device.Validate. Accepted
// events go to the hub; rejected ones are logged at warn level and counted
// by reason (decode, missing_field, bad_format, bad_status). Connection
// handling lives in the mqtt package: the subscription survives broker
// restarts and is re-applied on every reconnect.
package ingest
