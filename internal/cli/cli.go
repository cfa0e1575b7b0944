// Package cli prints the realmctl help and version banners.
package cli

import "fmt"

func ShowUsage() {
	fmt.Println("realmctl - Realm authorization graph import/export tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  realmctl [flags]")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -realm string         Realm name to operate on (created on role import if missing)")
	fmt.Println("  -import-realm string  Restore a full realm representation from a JSON file")
	fmt.Println("  -restore string       Restore a realm from its persisted snapshot by realm id")
	fmt.Println("  -import string        Partial role import from a JSON file into -realm")
	fmt.Println("  -skip-existing        Skip conflicting items on import instead of aborting")
	fmt.Println("  -export string        Write the realm's role export to this file")
	fmt.Println("  -server-export        Write the role export to the configured export directory")
	fmt.Println("  -condensed            Condensed (non-indented) JSON output")
	fmt.Println("  -config string        Path to configuration file (YAML, TOML, or JSON)")
	fmt.Println("  -validate-only        Only validate configuration, don't run")
	fmt.Println("  -help                 Show usage information")
	fmt.Println("  -version              Show version information")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  All configuration can be set via environment variables with REALM_ prefix")
	fmt.Println("  Example: REALM_STORAGE_HOST=localhost")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  realmctl -realm demo -import roles.json          # Import roles, creating the realm")
	fmt.Println("  realmctl -realm demo -import roles.json -skip-existing")
	fmt.Println("  realmctl -import-realm realm.json -server-export")
	fmt.Println("  realmctl -realm demo -export out.json -condensed")
}

func ShowVersion(version, commit, buildTime string) {
	fmt.Printf("realmctl\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Commit:  %s\n", commit)
	fmt.Printf("Built:   %s\n", buildTime)
}
