package tools

// Tool names exposed to the reasoning service. The catalog is fixed:
// providers advertise exactly these five and nothing else.
const (
	NameInspectProject = "inspect_project"
	NameCreateFile     = "create_file"
	NameModifyFile     = "modify_file"
	NameDeleteFile     = "delete_file"
	NameReadFile       = "read_file"
)

// Schema describes a tool for JSON schema/tool-calling.
type Schema struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  []SchemaField `json:"parameters"`
}

// SchemaField describes a single parameter.
type SchemaField struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// Catalog returns descriptors for the five supported tools.
func Catalog() []Schema {
	return []Schema{
		{
			Name:        NameInspectProject,
			Description: "Report structured findings about the repository before changing it",
			Parameters: []SchemaField{
				{Name: "project_type", Type: "string", Description: "Kind of project, e.g. web service, library, cli", Required: true},
				{Name: "primary_language", Type: "string", Description: "Dominant implementation language", Required: true},
				{Name: "complexity_level", Type: "string", Required: true, Enum: []string{"simple", "moderate", "complex"}},
				{Name: "insights", Type: "string", Description: "Free-form observations relevant to the requested change", Required: true},
				{Name: "frameworks", Type: "array", Description: "Frameworks and major libraries in use", Required: false},
			},
		},
		{
			Name:        NameCreateFile,
			Description: "Create a new file in the workspace",
			Parameters: []SchemaField{
				{Name: "file_path", Type: "string", Description: "Path relative to the repository root", Required: true},
				{Name: "content", Type: "string", Description: "Complete file content", Required: true},
				{Name: "description", Type: "string", Description: "One-line summary of what the file adds", Required: true},
				{Name: "reasoning", Type: "string", Description: "Why this file is needed for the requested change", Required: false},
			},
		},
		{
			Name:        NameModifyFile,
			Description: "Replace the content of an existing file; a README modify appends instead",
			Parameters: []SchemaField{
				{Name: "file_path", Type: "string", Description: "Path relative to the repository root", Required: true},
				{Name: "content", Type: "string", Description: "Complete replacement content", Required: true},
				{Name: "description", Type: "string", Description: "One-line summary of the change", Required: true},
				{Name: "reasoning", Type: "string", Description: "Why this change is needed", Required: false},
			},
		},
		{
			Name:        NameDeleteFile,
			Description: "Remove a file from the workspace",
			Parameters: []SchemaField{
				{Name: "file_path", Type: "string", Description: "Path relative to the repository root", Required: true},
				{Name: "description", Type: "string", Description: "One-line summary of why the file goes away", Required: true},
				{Name: "reasoning", Type: "string", Description: "Why removal is part of the requested change", Required: false},
			},
		},
		{
			Name:        NameReadFile,
			Description: "Read a file from the workspace",
			Parameters: []SchemaField{
				{Name: "file_path", Type: "string", Description: "Path relative to the repository root", Required: true},
			},
		},
	}
}

// SchemaFor returns the descriptor for a tool name if present.
func SchemaFor(name string) (Schema, bool) {
	for _, s := range Catalog() {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}
