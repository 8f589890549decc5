// Package midi captures the external event stream observed while an
// interpreter runs.
//
// Raw messages arrive on a Port stamped with their arrival time and are
// normalized into Events. Only note-on and note-off messages are
// recognized; anything else is reported as an UnknownEventError so that a
// capture never silently drops an event.
//
// The production Port is backed by gomidi with the rtmidi driver and binds
// to an input port by name (the ALSA "Midi Through" port by default).
package midi
