// Package security provides the permission catalog for the plugin host.
//
// # Capabilities
//
// Capabilities are permissions that plugins must declare in their manifest.
// Every capability has a risk level and a description, and some have a single
// parent capability that must be declared alongside them:
//
//	files.external          -> files
//	files.watch             -> files
//	projects.cross-project  -> projects
//
// Risk levels:
//   - safe: cannot affect anything outside the plugin
//   - elevated: touches user data inside the current project
//   - dangerous: reaches outside the project or the host process
//
// # Permissions
//
// The PermissionChecker enforces declared capabilities at call time:
//
//   - File reads are confined to the project root, plus declared external
//     roots when files.external is granted
//   - File writes are confined to the project root
//   - Process execution is limited to the manifest's allowedCommands
//
// Example usage:
//
//	checker := security.NewPermissionChecker("my-plugin", manifest.Permissions)
//	checker.SetProjectRoot("/path/to/project")
//
//	if err := checker.CheckFileRead("notes.md"); err != nil {
//	    // Access denied
//	}
package security
