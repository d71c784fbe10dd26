package capability

// RegisterBuiltins adds the default capability bundles to the registry.
func RegisterBuiltins(reg *Registry) error {
	builtins := []*Capability{
		{
			ID:          "sql",
			Name:        "SQL Analytics",
			Description: "Run read-only SQL queries against the analytics warehouse",
			Category:    "data",
			Kind:        KindBundle,
			ToolNames:   []string{"run_query", "describe_table"},
			Resources: []Resource{
				{
					Name: "querying",
					Summary: "Use run_query with a single SELECT statement. " +
						"Use describe_table to inspect a table's columns before querying it.",
					Detail: "Use run_query with a single SELECT statement; DDL and DML are refused " +
						"by the warehouse. Prefer explicit column lists over SELECT *, add LIMIT " +
						"clauses while exploring, and use describe_table to inspect column names " +
						"and types before writing joins. Query results come back as plain text " +
						"tables truncated to the first 100 rows.",
				},
			},
			Source: "builtin",
		},
		{
			ID:          "jira",
			Name:        "Issue Tracker",
			Description: "Search and create issues in the team's Jira project",
			Category:    "tracker",
			Kind:        KindBundle,
			ToolNames:   []string{"search_issues", "create_issue"},
			Resources: []Resource{
				{
					Name: "usage",
					Summary: "search_issues takes a JQL query string. " +
						"create_issue needs a project key, summary, and description.",
					Detail: "search_issues takes a JQL query string, e.g. " +
						"project = OPS AND status = \"In Progress\" ORDER BY created DESC. " +
						"create_issue needs a project key, a one-line summary, and a description " +
						"body; the created issue key is returned. Issue creation is gated behind " +
						"operator approval.",
				},
			},
			Source: "builtin",
		},
		{
			ID:          "spreadsheet",
			Name:        "Spreadsheet",
			Description: "Read and write ranges in shared spreadsheets",
			Category:    "data",
			Kind:        KindBundle,
			ToolNames:   []string{"read_range", "write_range"},
			Resources: []Resource{
				{
					Name: "ranges",
					Summary: "Ranges use A1 notation, e.g. Sheet1!A1:C10. " +
						"read_range returns CSV; write_range takes CSV rows.",
					Detail: "Ranges use A1 notation with an explicit sheet name, e.g. " +
						"Sheet1!A1:C10. read_range returns the cells as CSV. write_range takes " +
						"CSV rows and overwrites the target range exactly; it does not append. " +
						"Writes are gated behind operator approval.",
				},
			},
			Source: "builtin",
		},
	}
	for _, c := range builtins {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
