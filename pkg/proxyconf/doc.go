// Package proxyconf synthesizes the two artifacts derived from a deployment
// identity: the runtime configuration the supervised proxy reads from disk,
// and the client-facing connection descriptor with its vmess:// URI.
//
// # Runtime config
//
// BuildRuntimeConfig produces a single VMess inbound over WebSocket and a
// freedom outbound:
//
//	rc := proxyconf.BuildRuntimeConfig(params, inboundPort,
//	    proxyconf.WithListen("127.0.0.1"))
//	data, err := proxyconf.WriteRuntimeConfig("./config/config.json", rc)
//
// The inbound port is always the port passed in. It is the internal listener
// and has nothing to do with the port clients connect to.
//
// # Descriptor
//
// BuildDescriptor produces the parameters a client needs. The address and
// host are the public domain and the port is always 443, the port of the
// platform's TLS-terminating edge:
//
//	d := proxyconf.BuildDescriptor(params, params.PublicDomain())
//	uri, err := proxyconf.EncodeURI(d)
//
// Both builders are pure. Encoding is deterministic: the same inputs give
// byte-identical JSON and the same URI, and DecodeURI(EncodeURI(d)) == d.
package proxyconf
