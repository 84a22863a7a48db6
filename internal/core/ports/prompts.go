package ports

// Prompt template names served by a PromptStore.
const (
	PromptEnrichment    = "enrichment"
	PromptPDFExtraction = "pdf_extraction"
	PromptImageContext  = "image_context"
	PromptAudioContext  = "audio_context"
	PromptVideoContext  = "video_context"
	PromptMetaJSON      = "meta_json"
	PromptRAGQA         = "rag_qa"
	PromptRAGChat       = "rag_chat"
	PromptCompare       = "compare"
	PromptIdentity      = "identity"
	PromptIdentityNote  = "identity_note"
	PromptResume        = "resume"
	PromptEntityAuto    = "entity_auto"
	PromptEntityFields  = "entity_fields"
	PromptSummaryAuto   = "summary_auto"
	PromptFormFill      = "form_fill"
	PromptImageDocument = "image_document"
)
