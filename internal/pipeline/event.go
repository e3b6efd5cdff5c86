package pipeline

// Event type discriminators carried in every stream line.
const (
	EventProcessingStep = "processing_step"
	EventComplete       = "complete"
	EventError          = "error"
)

// Progress messages streamed while a query is processed. Clients display
// them verbatim, so the wording is part of the wire contract.
const (
	stepNoHistory  = "No previous conversation history found"
	stepContext    = "Understanding the context of the conversation"
	stepPlanning   = "Processing the user query, rewriting the query and determining the cloud provider"
	stepEmbedding  = "Generating embedding for the RAG query"
	stepRetrieving = "Retrieving relevant case studies"
	stepAnswering  = "Generating the final answer"
)

// ProcessingStepEvent reports pipeline progress.
type ProcessingStepEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Citation points the client at one retrieved case study.
type Citation struct {
	CompanyName string `json:"company_name"`
	Content     string `json:"content"`
	Link        string `json:"link"`
}

// CompleteEvent is the successful terminal event. CitationArray is always
// present, empty when nothing was retrieved.
type CompleteEvent struct {
	Type          string     `json:"type"`
	SessionID     string     `json:"session_id"`
	Response      string     `json:"response"`
	CitationArray []Citation `json:"citation_array"`
}

// ErrorEvent is the failing terminal event. Detail carries field-level
// validation problems and is omitted otherwise.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}
