package profile

import (
	"context"
	"fmt"

	"github.com/aetherflow/aetherflow/internal/secrets"
	"github.com/aetherflow/aetherflow/pkg/resolver"
)

// applyDecode walks marks (the decode mapping) in lockstep with the
// rendered and pre-render original trees, invoking hook.Decode on every
// leaf marked true. marks keys not present in rendered/original are
// skipped rather than erroring, since one decode mapping is applied to
// both the config and options trees of a resource.
func applyDecode(ctx context.Context, hook secrets.Hook, rendered, original map[string]interface{}, marks map[string]interface{}) (map[string]interface{}, error) {
	if len(marks) == 0 {
		return rendered, nil
	}
	for k, mark := range marks {
		renderedChild, hasRendered := rendered[k]
		originalChild, hasOriginal := original[k]
		if !hasRendered || !hasOriginal {
			continue
		}
		updated, err := decodeNode(ctx, hook, renderedChild, originalChild, mark)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		rendered[k] = updated
	}
	return rendered, nil
}

func decodeNode(ctx context.Context, hook secrets.Hook, rendered, original, mark interface{}) (interface{}, error) {
	switch m := mark.(type) {
	case bool:
		if !m {
			return rendered, nil
		}
		originalStr, ok := original.(string)
		if !ok {
			return nil, fmt.Errorf("decode-marked field must be a string")
		}
		if resolver.ContainsTemplateSyntax(originalStr) && !resolver.IsStandaloneToken(originalStr) {
			return nil, fmt.Errorf("decode-marked field must be a standalone template token, not concatenated text")
		}
		renderedStr, ok := rendered.(string)
		if !ok {
			return nil, fmt.Errorf("decode-marked field must render to a string")
		}
		return hook.Decode(ctx, renderedStr)

	case map[string]interface{}:
		renderedMap, ok1 := rendered.(map[string]interface{})
		originalMap, ok2 := original.(map[string]interface{})
		if !ok1 || !ok2 {
			return rendered, nil
		}
		updated, err := applyDecode(ctx, hook, renderedMap, originalMap, m)
		if err != nil {
			return nil, err
		}
		return updated, nil

	default:
		return rendered, nil
	}
}
