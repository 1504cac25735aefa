package ifsclookup

// Branch sources reported in Output.Source.
const (
	SourceIndex     = "elasticsearch"
	SourceDirectory = "directory"
	SourceMock      = "mock"
)

// Input resolves IFSC. When ApplicationID is set and that session is on
// bank-details, the result is merged into its bank-details draft.
type Input struct {
	IFSC          string `json:"ifsc"`
	ApplicationID string `json:"applicationId,omitempty"`
}

type Output struct {
	IFSC       string `json:"ifsc"`
	BankName   string `json:"bankName"`
	BranchName string `json:"branchName"`
	Source     string `json:"source"`
	Merged     bool   `json:"merged"`
}

// Branch is the document kept in the branch index.
type Branch struct {
	IFSC   string `json:"ifsc"`
	Bank   string `json:"bank"`
	Branch string `json:"branch"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
}

// directoryBranch is the directory's response body.
type directoryBranch struct {
	IFSC   string `json:"IFSC"`
	Bank   string `json:"BANK"`
	Branch string `json:"BRANCH"`
	City   string `json:"CITY"`
	State  string `json:"STATE"`
}

// mockBranch answers every well-formed code when no directory is reachable.
var mockBranch = Branch{Bank: "State Bank of India", Branch: "MG Road Branch"}
