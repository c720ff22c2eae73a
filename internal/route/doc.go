// Package route generates Gateway API route objects from Ingress host rules.
//
// Each reconcile pass builds fresh drafts per host, materializes them into
// HTTPRoute or TCPRoute objects with deterministic names, and hands them to
// the controller for server-side apply. Nothing is cached between passes.
package route
