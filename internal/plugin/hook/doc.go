// Package hook routes input to plugin commands.
//
// Two entry points exist:
//   - KeyHandler resolves a key chord through the key binding registry and
//     runs the bound command
//   - NamespaceHandler runs actions named plugin.<pluginID>.<commandID>
//
// Both funnel into the shared command bus and translate what the command
// returned into a Result. plugin.Host exposes them as HandleKey and
// RunAction.
//
// Example usage:
//
//	keys := hook.NewKeyHandler(svc.Keys, svc.Commands)
//	res := keys.HandleKey(ctx, "Meta+Shift+G", false)
//	if res.Handled && res.Err != nil {
//		log.Warn().Err(res.Err).Msg("command failed")
//	}
package hook
