package actions

import (
	"context"
	"errors"

	"github.com/goliatone/go-lifecycle/internal/documents"
	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/reporting"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// PublishAction copies the unpublished variant into the published slot. The
// previous published node is removed unless args["keep_previous"] is true.
func PublishAction(ctx context.Context, env Env, handle *documents.Handle, args Args) (*documents.Handle, error) {
	if handle.Unpublished == nil {
		return nil, failure(env, handle, "no unpublished variant to publish")
	}
	source, err := env.Session.Resolve(ctx, handle.Unpublished.Path)
	if err != nil {
		return nil, err
	}
	if handle.Published != nil && !args.Bool("keep_previous") {
		if err := removeNode(ctx, env, handle.Published); err != nil {
			return nil, err
		}
	}
	published, err := env.Session.Copy(ctx, source, domain.VariantPublished)
	if err != nil {
		return nil, err
	}
	if err := handle.SetVariant(domain.VariantPublished, published.Path); err != nil {
		return nil, err
	}
	env.logger().Debug("actions.publish.copied", "handle_id", handle.ID, "published", published.Path)
	return handle, nil
}

// DepublishAction removes the published variant and keeps the unpublished one.
func DepublishAction(ctx context.Context, env Env, handle *documents.Handle, _ Args) (*documents.Handle, error) {
	if handle.Published == nil {
		return handle, nil
	}
	if err := removeNode(ctx, env, handle.Published); err != nil {
		return nil, err
	}
	if err := handle.ClearVariant(domain.VariantPublished); err != nil {
		return nil, err
	}
	return handle, nil
}

// ArchiveAction deletes the draft and published variants and hands the
// unpublished variant to the core archiver. When the archiver is unavailable
// the fault is reported and the unpublished variant is deleted instead.
func ArchiveAction(ctx context.Context, env Env, handle *documents.Handle, _ Args) (*documents.Handle, error) {
	for _, kind := range []domain.VariantKind{domain.VariantDraft, domain.VariantPublished} {
		if err := deleteSlot(ctx, env, handle, kind); err != nil {
			return nil, err
		}
	}

	if handle.Unpublished != nil {
		archived, err := archiveUnpublished(ctx, env, handle)
		switch {
		case err == nil:
			if err := handle.ClearVariant(domain.VariantUnpublished); err != nil {
				return nil, err
			}
			if err := handle.SetVariant(domain.VariantArchived, archived.Path); err != nil {
				return nil, err
			}
		case errors.Is(err, domain.ErrCollaboratorUnavailable):
			reportMissing(ctx, env, handle, err)
			if err := deleteSlot(ctx, env, handle, domain.VariantUnpublished); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	handle.Archived = true
	handle.CheckedOut = false
	return handle, nil
}

// DeleteVariantAction removes the variant named by args["kind"].
func DeleteVariantAction(ctx context.Context, env Env, handle *documents.Handle, args Args) (*documents.Handle, error) {
	kind := domain.VariantKind(args.String("kind"))
	if kind == "" {
		return nil, failure(env, handle, "delete-variant requires a kind")
	}
	if err := deleteSlot(ctx, env, handle, kind); err != nil {
		return nil, err
	}
	return handle, nil
}

// CopyVariantAction copies args["from"] into args["to"], replacing the target.
func CopyVariantAction(ctx context.Context, env Env, handle *documents.Handle, args Args) (*documents.Handle, error) {
	from := domain.VariantKind(args.String("from"))
	to := domain.VariantKind(args.String("to"))
	if from == "" || to == "" || from == to {
		return nil, failure(env, handle, "copy-variant requires distinct from and to kinds")
	}
	ref := handle.Variant(from)
	if ref == nil {
		return nil, failure(env, handle, "no %s variant to copy", from)
	}
	source, err := env.Session.Resolve(ctx, ref.Path)
	if err != nil {
		return nil, err
	}
	if err := deleteSlot(ctx, env, handle, to); err != nil {
		return nil, err
	}
	copied, err := env.Session.Copy(ctx, source, to)
	if err != nil {
		return nil, err
	}
	if err := handle.SetVariant(to, copied.Path); err != nil {
		return nil, err
	}
	return handle, nil
}

// RestoreAction copies a retained node at args["source"] into the unpublished slot.
func RestoreAction(ctx context.Context, env Env, handle *documents.Handle, args Args) (*documents.Handle, error) {
	path := args.String("source")
	if path == "" {
		return nil, failure(env, handle, "restore requires a source path")
	}
	source, err := env.Session.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := deleteSlot(ctx, env, handle, domain.VariantUnpublished); err != nil {
		return nil, err
	}
	restored, err := env.Session.Copy(ctx, source, domain.VariantUnpublished)
	if err != nil {
		return nil, err
	}
	if err := handle.SetVariant(domain.VariantUnpublished, restored.Path); err != nil {
		return nil, err
	}
	return handle, nil
}

// CancelRequestAction leaves the variants alone. The interpreter removes the
// pending request and its invocation around it.
func CancelRequestAction(_ context.Context, _ Env, handle *documents.Handle, _ Args) (*documents.Handle, error) {
	return handle, nil
}

func archiveUnpublished(ctx context.Context, env Env, handle *documents.Handle) (*interfaces.VariantNode, error) {
	archiver, err := env.Collaborators.Archiver(CoreArchiver)
	if err != nil {
		return nil, err
	}
	node := &interfaces.VariantNode{
		Path:         handle.Unpublished.Path,
		DocumentPath: handle.Path,
		Kind:         domain.VariantUnpublished,
	}
	return archiver.Archive(ctx, env.Session, node)
}

func reportMissing(ctx context.Context, env Env, handle *documents.Handle, err error) {
	var missing *domain.OptionalCollaboratorMissing
	collaborator := CoreArchiver
	if errors.As(err, &missing) && missing.Collaborator != "" {
		collaborator = missing.Collaborator
	}
	env.logger().Warn("actions.archive.collaborator_unavailable",
		"handle_id", handle.ID,
		"collaborator", collaborator,
		"error", err,
	)
	if env.Reporter == nil {
		return
	}
	env.Reporter.Report(ctx, interfaces.Fault{
		Kind:         reporting.KindOptionalCollaboratorMissing,
		HandleID:     handle.ID.String(),
		Action:       env.Action,
		Collaborator: collaborator,
		Err:          err,
		OccurredAt:   env.now(),
	})
}

func deleteSlot(ctx context.Context, env Env, handle *documents.Handle, kind domain.VariantKind) error {
	ref := handle.Variant(kind)
	if ref == nil {
		return nil
	}
	if kind == domain.VariantDraft {
		node, err := env.Session.Resolve(ctx, ref.Path)
		switch {
		case err == nil:
			if err := env.Session.Checkin(ctx, node); err != nil {
				return err
			}
		case !errors.Is(err, interfaces.ErrNodeNotFound):
			return err
		}
	}
	if err := removeNode(ctx, env, ref); err != nil {
		return err
	}
	if err := handle.ClearVariant(kind); err != nil {
		return err
	}
	if kind == domain.VariantDraft {
		handle.CheckedOut = false
	}
	return nil
}

// removeNode deletes ref and treats a node that is already gone as removed.
func removeNode(ctx context.Context, env Env, ref *documents.VariantRef) error {
	node, err := env.Session.Resolve(ctx, ref.Path)
	if err != nil {
		if errors.Is(err, interfaces.ErrNodeNotFound) {
			return nil
		}
		return err
	}
	return env.Session.Delete(ctx, node)
}
