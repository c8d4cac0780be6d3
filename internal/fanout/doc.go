// Package fanout pushes widget state out of the process.
//
// Publisher follows widget.Store events and mirrors each widget's state onto
// a retained MQTT topic, clearing the topic when the widget is removed.
// Publishing happens on its own goroutine (Run); pending states are coalesced
// per widget so a slow broker never holds up the store.
//
// Commands is the inbound side: publishing to {prefix}/widget/{id}/refresh
// triggers an immediate fetch for that widget.
package fanout
