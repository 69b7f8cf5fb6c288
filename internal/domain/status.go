package domain

import "github.com/goliatone/go-lifecycle/pkg/interfaces"

// VariantKind aliases the content store variant kinds.
type VariantKind = interfaces.VariantKind

const (
	VariantDraft       = interfaces.VariantDraft
	VariantUnpublished = interfaces.VariantUnpublished
	VariantPublished   = interfaces.VariantPublished
	VariantArchived    = interfaces.VariantArchived
)

// RequestKind identifies the lifecycle change a pending request asks for.
type RequestKind string

const (
	RequestPublish             RequestKind = "publish"
	RequestDepublish           RequestKind = "depublish"
	RequestPublishAndDepublish RequestKind = "publish_and_depublish"
)

// Valid reports whether the kind is one of the known request kinds.
func (k RequestKind) Valid() bool {
	switch k {
	case RequestPublish, RequestDepublish, RequestPublishAndDepublish:
		return true
	default:
		return false
	}
}

// RequestStage tracks which half of a publish-and-depublish request is outstanding.
type RequestStage string

const (
	StagePublish   RequestStage = "publish"
	StageDepublish RequestStage = "depublish"
)
