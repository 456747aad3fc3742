// Package discovery finds the hub a topic advertises.
//
// A topic advertises its hub either in an HTTP Link header with rel="hub"
// or inside the feed document itself:
//
//	Atom:      <link rel="hub" href="..."/>
//	RSS:       <atom:link rel="hub" href="..."/>
//	JSON Feed: "hubs": [{"type": "WebSub", "url": "..."}]
//
// Link headers win over the body. Relative hub references are resolved
// against the final topic URL after redirects.
package discovery
