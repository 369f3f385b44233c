package patterns

// =============================================================================
// PATTERN DEFINITIONS BY CATEGORY
// All patterns are registered here and compiled once at package init.
// This provides a single source of truth for all signature indicators.
// =============================================================================

// --- SQL INJECTION INDICATORS ---
func (r *Registry) registerSQLInjectionPatterns() {
	cat := CategorySQLInjection

	r.register("union_select", `(?i)union\s+select`, cat, "UNION-based injection")
	r.register("select_from", `(?i)select\s+.+\s+from\s`, cat, "SELECT ... FROM probe")
	r.register("or_one_equals_one", `(?i)\bor\s+1\s*=\s*1\b`, cat, "always-true numeric tautology")
	r.register("quoted_tautology", `(?i)'\s*or\s*'`, cat, "always-true quoted tautology ('... OR '1'='1)")
	r.register("drop_table", `(?i)['";]?\s*drop\s+table`, cat, "stacked DROP TABLE")
	r.register("comment_dashes", `--`, cat, "SQL line comment terminator")
	r.register("comment_block", `/\*`, cat, "SQL block comment")
	r.register("insert_into", `(?i)insert\s+into`, cat, "stacked INSERT")
	r.register("delete_from", `(?i)delete\s+from`, cat, "stacked DELETE")
}

// --- CROSS-SITE SCRIPTING INDICATORS ---
func (r *Registry) registerXSSPatterns() {
	cat := CategoryXSS

	r.register("script_tag", `(?i)<script`, cat, "script tag injection")
	r.register("javascript_uri", `(?i)javascript:`, cat, "javascript: URI scheme")
	r.register("event_handler", `(?i)\bon\w+\s*=`, cat, "inline event handler (onerror=, onload=, ...)")
	r.register("iframe_tag", `(?i)<iframe`, cat, "iframe injection")
	r.register("embed_tag", `(?i)<embed`, cat, "embed tag injection")
	r.register("object_tag", `(?i)<object`, cat, "object tag injection")
}

// --- PATH TRAVERSAL INDICATORS ---
func (r *Registry) registerPathTraversalPatterns() {
	cat := CategoryPathTraversal

	r.register("dot_dot_slash", `\.\./`, cat, "unix directory traversal")
	r.register("dot_dot_backslash", `\.\.\\`, cat, "windows directory traversal")
	r.register("encoded_dot_dot", `(?i)%2e%2e`, cat, "URL-encoded traversal")
	r.register("etc_passwd", `(?i)/etc/passwd`, cat, "unix password file access")
	r.register("windows_drive", `(?i)c:\\windows`, cat, "windows system drive access")
	r.register("windows_system", `(?i)windows\\system`, cat, "windows system directory access")
}
