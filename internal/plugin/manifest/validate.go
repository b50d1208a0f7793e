package manifest

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/tidwall/gjson"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/security"
)

// Result is the outcome of validating a manifest. Manifest is set only when
// Valid is true.
type Result struct {
	Valid    bool
	Errors   []string
	Manifest *Manifest
}

// InvalidError wraps the validation errors of a rejected manifest.
type InvalidError struct {
	Errors []string
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	return "invalid manifest: " + strings.Join(e.Errors, "; ")
}

// idPattern validates plugin ids.
var idPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

var validSettingTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"select":  true,
}

// ValidID reports whether id is a well-formed plugin id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ValidateValue encodes v as JSON and validates the result.
func ValidateValue(v any) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return Result{Errors: []string{fmt.Sprintf("manifest could not be encoded: %v", err)}}
	}
	return Validate(data)
}

// Validate checks an untrusted manifest. It never panics; every rule is
// checked and all problems are reported together.
func Validate(raw []byte) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Errors: append(res.Errors, fmt.Sprintf("manifest validation failed: %v", r))}
		}
	}()

	if !gjson.ValidBytes(raw) {
		return Result{Errors: []string{"manifest is not valid JSON"}}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Result{Errors: []string{"manifest must be a JSON object"}}
	}

	v := &validator{root: root}
	v.checkDuplicateKeys(root, "")
	v.checkRequired()
	v.checkEngine()
	v.checkScope()
	v.checkKind()

	if v.kind == KindPack {
		v.checkPack()
	} else {
		v.checkPlugin()
	}
	v.checkHelpTopics()

	if len(v.errs) > 0 {
		return Result{Errors: v.errs}
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Result{Errors: []string{fmt.Sprintf("manifest could not be decoded: %v", err)}}
	}
	v.checkDecoded(&m)
	if len(v.errs) > 0 {
		return Result{Errors: v.errs}
	}
	return Result{Valid: true, Errors: []string{}, Manifest: &m}
}

// checkDuplicateKeys rejects objects that repeat a key. Keys are compared
// case-insensitively because the typed decoder matches them that way.
func (v *validator) checkDuplicateKeys(r gjson.Result, at string) {
	switch {
	case r.IsObject():
		seen := make(map[string]bool)
		r.ForEach(func(k, val gjson.Result) bool {
			p := k.String()
			if at != "" {
				p = at + "." + p
			}
			folded := strings.ToLower(strings.ToUpper(k.String()))
			if seen[folded] {
				v.addf("duplicate key %q", p)
			}
			seen[folded] = true
			v.checkDuplicateKeys(val, p)
			return true
		})
	case r.IsArray():
		for i, e := range r.Array() {
			v.checkDuplicateKeys(e, fmt.Sprintf("%s[%d]", at, i))
		}
	}
}

// checkDecoded compares the typed manifest with the fields the rules were
// checked against. A key spelled in a different case is invisible to the
// rules but still picked up by the decoder.
func (v *validator) checkDecoded(m *Manifest) {
	mismatch := func(field string) {
		v.addf("field %q does not match its decoded value; keys must use their exact spelling", field)
	}
	strs := func(field string) []string {
		var out []string
		for _, e := range v.root.Get(field).Array() {
			out = append(out, e.Str)
		}
		return out
	}

	if m.ID != v.root.Get("id").Str {
		mismatch("id")
	}
	if string(m.Scope) != v.root.Get("scope").Str {
		mismatch("scope")
	}
	if string(m.Kind) != v.root.Get("kind").Str {
		mismatch("kind")
	}
	if m.Main != v.root.Get("main").Str {
		mismatch("main")
	}
	if float64(m.Engine.API) != v.root.Get("engine.api").Num {
		mismatch("engine.api")
	}
	perms := make([]string, 0, len(m.Permissions))
	for _, p := range m.Permissions {
		perms = append(perms, string(p))
	}
	if !slices.Equal(perms, strs("permissions")) {
		mismatch("permissions")
	}
	if !slices.Equal(m.AllowedCommands, strs("allowedCommands")) {
		mismatch("allowedCommands")
	}
	roots := v.root.Get("externalRoots").Array()
	if len(m.ExternalRoots) != len(roots) {
		mismatch("externalRoots")
		return
	}
	for i, r := range m.ExternalRoots {
		if r.SettingKey != roots[i].Get("settingKey").Str || r.Root != roots[i].Get("root").Str {
			mismatch(fmt.Sprintf("externalRoots[%d]", i))
		}
	}
}

type validator struct {
	root gjson.Result
	errs []string

	api   APIVersion
	apiOK bool
	kind  Kind
	scope Scope

	permissions map[security.Capability]bool
}

func (v *validator) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Sprintf(format, args...))
}

// since reports whether the targeted API is known and at least min.
func (v *validator) since(min APIVersion) bool {
	return v.apiOK && v.api.AtLeast(min)
}

// before reports whether the targeted API is known and older than min.
func (v *validator) before(min APIVersion) bool {
	return v.apiOK && !v.api.AtLeast(min)
}

// requireString checks a required string field and returns its value.
func (v *validator) requireString(field string) (string, bool) {
	r := v.root.Get(field)
	if !r.Exists() {
		v.addf("missing required field %q", field)
		return "", false
	}
	if r.Type != gjson.String {
		v.addf("field %q must be a string", field)
		return "", false
	}
	if strings.TrimSpace(r.Str) == "" {
		v.addf("field %q must not be empty", field)
		return "", false
	}
	return r.Str, true
}

// nonEmptyString checks an element field that must be a non-empty string.
func (v *validator) nonEmptyString(r gjson.Result, field, label string) (string, bool) {
	f := r.Get(field)
	if f.Type != gjson.String || strings.TrimSpace(f.Str) == "" {
		v.addf("%s.%s must be a non-empty string", label, field)
		return "", false
	}
	return f.Str, true
}

// array returns the elements of an optional array field.
func (v *validator) array(field string) ([]gjson.Result, bool) {
	r := v.root.Get(field)
	if !r.Exists() {
		return nil, false
	}
	if !r.IsArray() {
		v.addf("field %q must be an array", field)
		return nil, false
	}
	return r.Array(), true
}

func (v *validator) checkRequired() {
	if id, ok := v.requireString("id"); ok && !idPattern.MatchString(id) {
		v.addf("invalid id %q: must match %s", id, idPattern.String())
	}
	v.requireString("name")
	if ver, ok := v.requireString("version"); ok && !semverPattern.MatchString(ver) {
		v.addf("invalid version %q: must be a semantic version", ver)
	}
}

func (v *validator) checkEngine() {
	engine := v.root.Get("engine")
	if engine.Exists() && !engine.IsObject() {
		v.addf("field %q must be an object", "engine")
		return
	}
	api := v.root.Get("engine.api")
	if !api.Exists() {
		v.addf("missing required field %q", "engine.api")
		return
	}
	if api.Type != gjson.Number {
		v.addf("field %q must be a number", "engine.api")
		return
	}
	v.api = APIVersion(api.Num)
	v.apiOK = true

	if !IsSupported(v.api) {
		v.addf("engine.api %s is not supported; supported versions: %s", v.api, supportedList())
	}
}

func (v *validator) checkScope() {
	scope, ok := v.requireString("scope")
	if !ok {
		return
	}
	switch Scope(scope) {
	case ScopeProject, ScopeApp, ScopeDual:
		v.scope = Scope(scope)
	default:
		v.addf("invalid scope %q: must be one of project, app, dual", scope)
		return
	}

	if v.scope == ScopeProject && v.root.Get("contributes.railItem").Exists() {
		v.addf("project-scoped plugins cannot contribute a railItem")
	}
	if v.scope == ScopeApp && v.root.Get("contributes.tab").Exists() {
		v.addf("app-scoped plugins cannot contribute a tab")
	}
}

func (v *validator) checkKind() {
	v.kind = KindPlugin
	if c := v.root.Get("contributes"); c.Exists() && !c.IsObject() {
		v.addf("field %q must be an object", "contributes")
	}

	k := v.root.Get("kind")
	if !k.Exists() {
		return
	}
	if k.Type != gjson.String || (k.Str != string(KindPlugin) && k.Str != string(KindPack)) {
		v.addf("invalid kind %s: must be \"plugin\" or \"pack\"", k.Raw)
		return
	}
	v.kind = Kind(k.Str)
}

func (v *validator) checkPlugin() {
	v.checkMain()
	v.checkSettingsPanel()
	v.checkPermissions()
	v.checkExternalRoots()
	v.checkAllowedCommands()
	v.checkHelpRequired()
	v.checkCommands()
	v.checkSettings()
	v.checkSurface("tab")
	v.checkSurface("railItem")

	if v.root.Get("contributes.themes").Exists() {
		v.addf("contributes.themes is only allowed for pack plugins")
	}
}

func (v *validator) checkMain() {
	r := v.root.Get("main")
	if !r.Exists() {
		return
	}
	if r.Type != gjson.String || r.Str == "" {
		v.addf("field %q must be a non-empty string", "main")
		return
	}
	p := r.Str
	if strings.HasPrefix(p, "/") || strings.Contains(p, `\`) || hasParentSegment(p) {
		v.addf("invalid main %q: must be a relative path inside the plugin directory", p)
		return
	}
	if path.Ext(p) != ".lua" {
		v.addf("invalid main %q: must be a .lua file", p)
	}
}

func (v *validator) checkSettingsPanel() {
	r := v.root.Get("settingsPanel")
	if !r.Exists() {
		return
	}
	if r.Type != gjson.String || (r.Str != "declarative" && r.Str != "custom") {
		v.addf("invalid settingsPanel %s: must be \"declarative\" or \"custom\"", r.Raw)
	}
}

func (v *validator) checkPermissions() {
	v.permissions = make(map[security.Capability]bool)

	r := v.root.Get("permissions")
	if !r.Exists() {
		if v.since(PermissionsSince) {
			v.addf("missing required field %q (required from engine.api %s)", "permissions", PermissionsSince)
		}
		return
	}
	if !r.IsArray() {
		v.addf("field %q must be an array", "permissions")
		return
	}

	var declared []security.Capability
	for i, p := range r.Array() {
		if p.Type != gjson.String {
			v.addf("permissions[%d] must be a string", i)
			continue
		}
		c := security.Capability(p.Str)
		if !security.IsKnown(c) {
			v.addf("unknown permission %q", p.Str)
			continue
		}
		if v.permissions[c] {
			v.addf("duplicate permission %q", p.Str)
			continue
		}
		v.permissions[c] = true
		declared = append(declared, c)
	}

	for _, c := range declared {
		if parent, ok := security.ParentOf(c); ok && !v.permissions[parent] {
			v.addf("permission %q requires its parent permission %q", c, parent)
		}
	}
}

func (v *validator) checkExternalRoots() {
	roots, present := v.array("externalRoots")
	for i, r := range roots {
		label := fmt.Sprintf("externalRoots[%d]", i)
		if !r.IsObject() {
			v.addf("%s must be an object", label)
			continue
		}
		v.nonEmptyString(r, "settingKey", label)
		if root, ok := v.nonEmptyString(r, "root", label); ok && (strings.HasPrefix(root, "/") || hasParentSegment(root)) {
			v.addf("%s.root %q must be a relative path without parent segments", label, root)
		}
	}

	hasRoots := present && len(roots) > 0
	hasCap := v.permissions[security.CapabilityFilesExternal]
	if hasCap && !hasRoots {
		v.addf("permission %q requires at least one externalRoots entry", security.CapabilityFilesExternal)
	}
	if hasRoots && !hasCap {
		v.addf("externalRoots requires the %q permission", security.CapabilityFilesExternal)
	}
}

func (v *validator) checkAllowedCommands() {
	cmds, present := v.array("allowedCommands")
	for i, c := range cmds {
		if c.Type != gjson.String || c.Str == "" {
			v.addf("allowedCommands[%d] must be a non-empty string", i)
			continue
		}
		if !isBareExecutable(c.Str) {
			v.addf("allowedCommands[%d] %q must be a bare executable name without path separators", i, c.Str)
		}
	}

	hasCmds := present && len(cmds) > 0
	hasCap := v.permissions[security.CapabilityProcess]
	if hasCap && !hasCmds {
		v.addf("permission %q requires a non-empty allowedCommands list", security.CapabilityProcess)
	}
	if hasCmds && !hasCap {
		v.addf("allowedCommands requires the %q permission", security.CapabilityProcess)
	}
}

func (v *validator) checkHelpRequired() {
	if !v.root.Get("contributes.help").Exists() && v.since(PermissionsSince) {
		v.addf("missing required field %q (required from engine.api %s)", "contributes.help", PermissionsSince)
	}
}

// checkHelpTopics validates declared help topics for every kind.
func (v *validator) checkHelpTopics() {
	h := v.root.Get("contributes.help")
	if !h.Exists() {
		return
	}
	if !h.IsObject() {
		v.addf("field %q must be an object", "contributes.help")
		return
	}
	topics := h.Get("topics")
	if !topics.Exists() {
		return
	}
	if !topics.IsArray() {
		v.addf("field %q must be an array", "contributes.help.topics")
		return
	}
	for i, t := range topics.Array() {
		label := fmt.Sprintf("contributes.help.topics[%d]", i)
		if !t.IsObject() {
			v.addf("%s must be an object", label)
			continue
		}
		v.nonEmptyString(t, "id", label)
		v.nonEmptyString(t, "title", label)
		v.nonEmptyString(t, "content", label)
	}
}

func (v *validator) checkCommands() {
	cmds, _ := v.array("contributes.commands")
	seen := make(map[string]bool)
	for i, c := range cmds {
		label := fmt.Sprintf("contributes.commands[%d]", i)
		if !c.IsObject() {
			v.addf("%s must be an object", label)
			continue
		}
		if id, ok := v.nonEmptyString(c, "id", label); ok {
			if seen[id] {
				v.addf("duplicate command id %q", id)
			}
			seen[id] = true
		}
		v.nonEmptyString(c, "title", label)

		if b := c.Get("defaultBinding"); b.Exists() {
			if b.Type != gjson.String || strings.TrimSpace(b.Str) == "" {
				v.addf("%s.defaultBinding must be a non-empty string", label)
			}
			if v.before(KeybindingsSince) {
				v.addf("%s.defaultBinding requires engine.api >= %s", label, KeybindingsSince)
			}
		}
		if g := c.Get("global"); g.Exists() {
			if !g.IsBool() {
				v.addf("%s.global must be a boolean", label)
			}
			if v.before(KeybindingsSince) {
				v.addf("%s.global requires engine.api >= %s", label, KeybindingsSince)
			}
		}
	}
}

func (v *validator) checkSettings() {
	settings, _ := v.array("contributes.settings")
	seen := make(map[string]bool)
	for i, s := range settings {
		label := fmt.Sprintf("contributes.settings[%d]", i)
		if !s.IsObject() {
			v.addf("%s must be an object", label)
			continue
		}
		if key, ok := v.nonEmptyString(s, "key", label); ok {
			if seen[key] {
				v.addf("duplicate setting key %q", key)
			}
			seen[key] = true
		}
		typ, ok := v.nonEmptyString(s, "type", label)
		if !ok {
			continue
		}
		if !validSettingTypes[typ] {
			v.addf("%s.type %q must be one of string, number, boolean, select", label, typ)
			continue
		}
		if typ == "select" {
			opts := s.Get("options")
			if !opts.IsArray() || len(opts.Array()) == 0 {
				v.addf("%s.options must be a non-empty array for select settings", label)
			}
		}
	}
}

// checkSurface validates a tab or railItem contribution.
func (v *validator) checkSurface(name string) {
	field := "contributes." + name
	r := v.root.Get(field)
	if !r.Exists() {
		return
	}
	if !r.IsObject() {
		v.addf("field %q must be an object", field)
		return
	}
	v.nonEmptyString(r, "label", field)
}

func (v *validator) checkPack() {
	if v.before(PacksSince) {
		v.addf("kind \"pack\" requires engine.api >= %s", PacksSince)
	}

	forbidden := []struct{ field, msg string }{
		{"main", `pack plugins cannot declare "main"`},
		{"settingsPanel", `pack plugins cannot declare "settingsPanel"`},
		{"contributes.tab", "pack plugins cannot contribute a tab"},
		{"contributes.railItem", "pack plugins cannot contribute a railItem"},
		{"contributes.commands", "pack plugins cannot contribute commands"},
		{"externalRoots", "pack plugins cannot declare externalRoots"},
		{"allowedCommands", "pack plugins cannot declare allowedCommands"},
	}
	for _, f := range forbidden {
		if v.root.Get(f.field).Exists() {
			v.addf("%s", f.msg)
		}
	}
	if p := v.root.Get("permissions"); p.Exists() && (!p.IsArray() || len(p.Array()) > 0) {
		v.addf("pack plugins cannot declare permissions")
	}

	v.checkThemes()
}

func (v *validator) checkThemes() {
	themes := v.root.Get("contributes.themes")
	if !themes.IsArray() || len(themes.Array()) == 0 {
		v.addf("pack plugins must contribute at least one theme in contributes.themes")
		return
	}

	seen := make(map[string]bool)
	for i, t := range themes.Array() {
		label := fmt.Sprintf("contributes.themes[%d]", i)
		if !t.IsObject() {
			v.addf("%s must be an object", label)
			continue
		}
		if id, ok := v.nonEmptyString(t, "id", label); ok {
			if seen[id] {
				v.addf("duplicate theme id %q", id)
			}
			seen[id] = true
		}
		v.nonEmptyString(t, "name", label)
		if typ := t.Get("type"); typ.Str != "dark" && typ.Str != "light" {
			v.addf("%s.type must be \"dark\" or \"light\"", label)
		}

		colors := t.Get("colors")
		if !colors.IsObject() {
			v.addf("%s.colors must be an object", label)
			continue
		}
		count := 0
		colors.ForEach(func(key, value gjson.Result) bool {
			count++
			if value.Type != gjson.String {
				v.addf("%s.colors.%s must be a string", label, key.Str)
				return true
			}
			if _, err := colorful.Hex(value.Str); err != nil {
				v.addf("%s.colors.%s %q is not a valid hex colour", label, key.Str, value.Str)
			}
			return true
		})
		if count == 0 {
			v.addf("%s.colors must not be empty", label)
		}
	}
}

// isBareExecutable reports whether name has no path separators and no
// parent-directory segments.
func isBareExecutable(name string) bool {
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return name != "." && !strings.Contains(name, "..")
}

func hasParentSegment(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
