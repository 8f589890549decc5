// Package testdb holds the persisted test database: an ordered list of
// suites, each an ordered list of cases with their recorded expectation.
//
// The database is read once with Load and written back in full with Save.
// There is no locking; only one process may use a database file at a time.
//
// # Document format
//
// The file is a JSON array compatible with the test_db.json files written
// by earlier versions of the harness:
//
//	[
//	  {
//	    "name": "arithmetic",
//	    "cases": [
//	      {
//	        "name": "add.mq",
//	        "exit_code": 0,
//	        "stdin_lines": [],
//	        "stdout_lines": ["3"],
//	        "stderr_lines": [],
//	        "midi_events": null
//	      }
//	    ]
//	  }
//	]
//
// Only name is required for a case. Missing line lists default to empty,
// a missing exit code to 0, and a missing or null midi_events means the
// case does not capture events. Documents are checked against an embedded
// CUE schema before decoding, so unknown fields, wrong types and unknown
// event kinds are rejected with a single positioned error.
package testdb
