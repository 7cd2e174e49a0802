package armclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"

	"github.com/chenyanchen/armorch/resourceid"
	"github.com/chenyanchen/armorch/transport"
)

// apiVersions resolves the api-version of a resource type. Provider lookups
// are done once per namespace and shared by concurrent callers.
type apiVersions struct {
	providers ProvidersClient
	pinned    map[string]string

	mu    sync.RWMutex
	cache map[string]map[string]string

	sf singleflight.Group
}

func newAPIVersions(providers ProvidersClient, pinned map[string]string) *apiVersions {
	v := &apiVersions{
		providers: providers,
		pinned:    make(map[string]string, len(pinned)),
		cache:     make(map[string]map[string]string),
	}
	for t, version := range pinned {
		v.pinned[normalizeType(t)] = version
	}
	return v
}

func (v *apiVersions) forID(ctx context.Context, id string) (string, error) {
	rt := resourceid.Type(id)
	if rt == "" {
		return "", &transport.Error{Kind: transport.KindInvalid, Op: "resolve api version", ID: id, Err: fmt.Errorf("invalid resource id")}
	}
	return v.forType(ctx, rt)
}

func (v *apiVersions) forType(ctx context.Context, resourceType string) (string, error) {
	key := normalizeType(resourceType)
	if version, ok := v.pinned[key]; ok {
		return version, nil
	}

	namespace, _, _ := strings.Cut(resourceType, "/")
	types, err := v.load(ctx, namespace)
	if err != nil {
		return "", err
	}
	version, ok := types[key]
	if !ok {
		return "", &transport.Error{
			Kind: transport.KindInvalid,
			Op:   "resolve api version",
			ID:   resourceType,
			Err:  fmt.Errorf("provider %s has no api version for %s", namespace, resourceType),
		}
	}
	return version, nil
}

func (v *apiVersions) load(ctx context.Context, namespace string) (map[string]string, error) {
	nsKey := strings.ToLower(namespace)

	v.mu.RLock()
	cached, ok := v.cache[nsKey]
	v.mu.RUnlock()
	if ok {
		return cached, nil
	}
	if v.providers == nil {
		return nil, fmt.Errorf("no providers client to look up %s api versions", namespace)
	}

	res, err, _ := v.sf.Do(nsKey, func() (any, error) {
		v.mu.RLock()
		cachedAgain, ok := v.cache[nsKey]
		v.mu.RUnlock()
		if ok {
			return cachedAgain, nil
		}

		resp, err := v.providers.Get(ctx, namespace, nil)
		if err != nil {
			return nil, mapError("get provider", namespace, err)
		}
		types := make(map[string]string, len(resp.ResourceTypes))
		for _, rt := range resp.ResourceTypes {
			if rt == nil || rt.ResourceType == nil {
				continue
			}
			if version := latestVersion(rt.APIVersions); version != "" {
				types[normalizeType(namespace+"/"+*rt.ResourceType)] = version
			}
		}
		slogcontext.FromCtx(ctx).DebugContext(ctx, "loaded provider api versions", "namespace", namespace, "types", len(types))

		v.mu.Lock()
		v.cache[nsKey] = types
		v.mu.Unlock()
		return types, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]string), nil
}

// latestVersion prefers the newest stable version and falls back to the
// newest preview. Versions are dates, so they sort lexically.
func latestVersion(versions []*string) string {
	var stable, all []string
	for _, v := range versions {
		if v == nil || *v == "" {
			continue
		}
		all = append(all, *v)
		if !strings.Contains(strings.ToLower(*v), "preview") {
			stable = append(stable, *v)
		}
	}
	pick := stable
	if len(pick) == 0 {
		pick = all
	}
	if len(pick) == 0 {
		return ""
	}
	sort.Sort(sort.Reverse(sort.StringSlice(pick)))
	return pick[0]
}
