// keeper provisions, configures and supervises a v2ray proxy behind a small
// HTTP facade, for hosting platforms that only run a single web process.
//
// Usage:
//
//	# Provision the binary, write its config, launch it and serve the facade
//	keeper run
//
//	# Start with a configuration file
//	keeper run --config /etc/keeper/keeper.yaml
//
//	# Print the client link for the current environment
//	keeper link
//
//	# Print the runtime config that run would write
//	keeper render
//
//	# Show version information
//	keeper version
package main

func main() {
	Execute()
}
