// Package harness runs view scenarios end to end.
//
// Each scenario gets a fresh in-memory SQLite store and engine. The harness
// compiles the scenario's CUE views, installs them, applies the setup and flow
// steps through the real collections, and records every hook event the
// collections fire. Assertions then run against that trace and the final
// collection contents.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	views: |
//	  view: POSTS: {source: "posts", target: "postsView", sync: {...}}
//	specs:
//	  - ../views/blog.cue
//	setup:
//	  - op: insert
//	    collection: authors
//	    doc: { _id: "author-1", name: "ann" }
//	flow:
//	  - op: update
//	    collection: posts
//	    id: post-1
//	    doc: { text: "edited" }
//	    user: editor
//	  - op: refresh
//	    view: POSTS
//	    ids: [post-1, ghost]
//	    expect:
//	      report: { recomputed: 1, skipped: 1 }
//	assertions:
//	  - type: trace_order
//	    events: ["update posts", "update postsView"]
//	  - type: document
//	    collection: postsView
//	    id: post-1
//	    expect: { text: "edited" }
//
// Step ops are insert, update, upsert, remove, refresh and refresh_all. A
// step without expect must succeed; expect.error names an engine error code
// (NOT_FOUND, ...) or a substring of the expected error.
//
// # Assertion Types
//
//   - trace_contains: an event fired on a collection (optionally for one id)
//   - trace_order: "<event> <collection>" pairs first fired in this order
//   - trace_count: an event fired on a collection exactly N times
//   - document: a final document matches the listed fields
//   - absent: a document is not in the final state
//   - count: a collection holds exactly N documents
//
// # Deterministic Testing
//
// Generated document ids ("doc-1", "doc-2", ...) and flow tokens ("flow-1",
// "flow-2", ...) are sequential, so identical scenarios produce identical
// traces and can be compared against golden snapshots.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/blog.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
