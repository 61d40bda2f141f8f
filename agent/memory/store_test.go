package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/craftmeet/agent/persistence"
	"github.com/BaSui01/craftmeet/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newLocalStore(t testing.TB, cfg Config) *Store {
	t.Helper()
	backend, err := persistence.NewLocalBackend("", zap.NewNop())
	require.NoError(t, err)
	s, err := New("craftsman_1", backend, cfg, zap.NewNop())
	require.NoError(t, err)
	return s
}

func newRedisStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := persistence.NewRedisBackendWithClient(client, "test:", zap.NewNop())
	t.Cleanup(func() {
		backend.Close()
		mr.Close()
	})
	s, err := New("consumer_1", backend, cfg, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	backend, err := persistence.NewLocalBackend("", nil)
	require.NoError(t, err)

	_, err = New("", backend, DefaultConfig(), nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))

	_, err = New("p1", nil, DefaultConfig(), nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidInput))
}

func TestStore_AddThenGetByType(t *testing.T) {
	t.Parallel()

	for name, store := range map[string]*Store{
		"local": newLocalStore(t, DefaultConfig()),
		"redis": newRedisStore(t, DefaultConfig()),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			introID, err := store.AddMemory(ctx, types.MemoryIntroduction, map[string]any{"content": "我是做剪纸的张师傅"})
			require.NoError(t, err)
			discussID, err := store.AddMemory(ctx, types.MemoryDiscussion, map[string]any{"content": "红色寓意吉祥", "topic": "剪纸"})
			require.NoError(t, err)
			assert.Regexp(t, `^\d{13}_[0-9a-f]{8}$`, introID)

			intros, err := store.GetMemoriesByType(ctx, types.MemoryIntroduction, 10)
			require.NoError(t, err)
			require.Len(t, intros, 1)
			assert.Equal(t, introID, intros[0].ID)
			assert.Equal(t, "我是做剪纸的张师傅", intros[0].Content["content"])

			all, err := store.GetAllMemories(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, introID, all[0].ID)
			assert.Equal(t, discussID, all[1].ID)
		})
	}
}

func TestStore_RecencyOrder(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		typ := types.MemoryDiscussion
		if i%2 == 0 {
			typ = types.MemoryKeywords
		}
		_, err := store.AddMemory(ctx, typ, map[string]any{"content": fmt.Sprintf("第%d条", i), "keywords": []string{fmt.Sprintf("k%d", i)}})
		require.NoError(t, err)
	}

	relevant, err := store.GetRelevantMemories(ctx, "任意主题", 2)
	require.NoError(t, err)
	require.Len(t, relevant, 2)
	assert.Contains(t, relevant[0], "k4")
	assert.Contains(t, relevant[1], "第3条")

	kw, err := store.GetMemoriesByType(ctx, types.MemoryKeywords, 0)
	require.NoError(t, err)
	require.Len(t, kw, 3)
	for i := 1; i < len(kw); i++ {
		assert.True(t, kw[i-1].Timestamp.After(kw[i].Timestamp))
		assert.Equal(t, types.MemoryKeywords, kw[i].Type)
	}
}

func TestStore_SearchByContent(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t, DefaultConfig())
	ctx := context.Background()

	for _, text := range []string{"剪纸灯笼", "陶瓷茶具", "剪纸书签", "刺绣香囊"} {
		_, err := store.AddMemory(ctx, types.MemoryDiscussion, map[string]any{"content": text})
		require.NoError(t, err)
	}

	hits, err := store.SearchMemoriesByContent(ctx, "剪纸", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "剪纸书签", hits[0].Content["content"])
	assert.Equal(t, "剪纸灯笼", hits[1].Content["content"])

	limited, err := store.SearchMemoriesByContent(ctx, "剪纸", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_EvictsOldestFirst(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxMemories = 3
	store := newRedisStore(t, cfg)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		typ := types.MemoryDiscussion
		if i == 0 {
			typ = types.MemoryIntroduction
		}
		id, err := store.AddMemory(ctx, typ, map[string]any{"content": fmt.Sprint(i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := store.GetAllMemories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, e := range all {
		assert.Equal(t, ids[i+2], e.ID)
	}

	stats, err := store.GetMemoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalMemories)
	assert.Equal(t, int64(3), stats.ByType[types.MemoryDiscussion])
	assert.NotContains(t, stats.ByType, types.MemoryIntroduction)

	intros, err := store.GetMemoriesByType(ctx, types.MemoryIntroduction, 0)
	require.NoError(t, err)
	assert.Empty(t, intros)
}

func TestStore_TotalIsBoundedProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(rt, "n")
		maxMemories := rapid.IntRange(1, 15).Draw(rt, "max")

		cfg := DefaultConfig()
		cfg.MaxMemories = maxMemories
		store := newLocalStore(t, cfg)
		ctx := context.Background()

		var ids []string
		for i := 0; i < n; i++ {
			id, err := store.AddMemory(ctx, types.MemoryDiscussion, map[string]any{"content": i})
			if err != nil {
				rt.Fatalf("add: %v", err)
			}
			ids = append(ids, id)
		}

		stats, err := store.GetMemoryStats(ctx)
		if err != nil {
			rt.Fatalf("stats: %v", err)
		}
		want := min(n, maxMemories)
		if stats.TotalMemories != int64(want) {
			rt.Fatalf("total = %d, want %d", stats.TotalMemories, want)
		}

		all, err := store.GetAllMemories(ctx)
		if err != nil {
			rt.Fatalf("all: %v", err)
		}
		survivors := ids[len(ids)-want:]
		for i, e := range all {
			if e.ID != survivors[i] {
				rt.Fatalf("entry %d = %s, want %s", i, e.ID, survivors[i])
			}
		}
	})
}

func TestStore_DeleteMemory(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t, DefaultConfig())
	ctx := context.Background()

	keep, err := store.AddMemory(ctx, types.MemoryDiscussion, map[string]any{"content": "保留"})
	require.NoError(t, err)
	drop, err := store.AddMemory(ctx, types.MemoryRoleSwitch, map[string]any{"content": "撤回"})
	require.NoError(t, err)
	_, err = store.GetAllMemories(ctx)
	require.NoError(t, err)

	require.NoError(t, store.DeleteMemory(ctx, drop))
	require.NoError(t, store.DeleteMemory(ctx, "missing"))

	all, err := store.GetAllMemories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep, all[0].ID)
	byType, err := store.GetMemoriesByType(ctx, types.MemoryRoleSwitch, 0)
	require.NoError(t, err)
	assert.Empty(t, byType)
	stats, err := store.GetMemoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMemories)
	assert.Equal(t, map[types.MemoryType]int64{types.MemoryDiscussion: 1}, stats.ByType)
	assert.Equal(t, 1, store.CacheLen())
}

func TestStore_ClearEmptiesReadsAndCache(t *testing.T) {
	t.Parallel()

	store := newRedisStore(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := store.AddMemory(ctx, types.MemoryKeywords, map[string]any{"keywords": []string{"剪纸", "红色"}})
		require.NoError(t, err)
	}
	_, err := store.GetAllMemories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, store.CacheLen())

	require.NoError(t, store.ClearMemories(ctx))
	assert.Zero(t, store.CacheLen())

	all, err := store.GetAllMemories(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	byType, err := store.GetMemoriesByType(ctx, types.MemoryKeywords, 10)
	require.NoError(t, err)
	assert.Empty(t, byType)
	relevant, err := store.GetRelevantMemories(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, relevant)
	stats, err := store.GetMemoryStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMemories)
	assert.Empty(t, stats.ByType)
}

func TestStore_SerializationSentinel(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t, DefaultConfig())
	ctx := context.Background()

	id, err := store.AddMemory(ctx, types.MemoryDesignCard, map[string]any{"bad": make(chan int)})
	require.NoError(t, err)

	cards, err := store.GetMemoriesByType(ctx, types.MemoryDesignCard, 1)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, id, cards[0].ID)
	assert.Equal(t, "serialization_failed", cards[0].Content["error"])
}

func TestStore_AutoAdapterFallsBackToLocal(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	remote := persistence.NewRedisBackend(persistence.RedisOptions{Addr: addr, DialTimeout: 50 * time.Millisecond}, zap.NewNop())
	local, err := persistence.NewLocalBackend("", zap.NewNop())
	require.NoError(t, err)
	adapter, err := persistence.NewAdapter(persistence.PolicyAuto, remote, local)
	require.NoError(t, err)
	defer adapter.Close()

	store, err := New("designer_1", adapter, DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	id, err := store.AddMemory(ctx, types.MemoryIntroduction, map[string]any{"content": "你好"})
	require.NoError(t, err)

	all, err := store.GetAllMemories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].ID)
	assert.True(t, adapter.FellBack())
}

func TestEntry_Format(t *testing.T) {
	ts := time.Date(2026, 3, 1, 14, 5, 9, 0, time.Local)

	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			name:  "introduction",
			entry: Entry{Type: types.MemoryIntroduction, Timestamp: ts, Content: map[string]any{"content": "大家好"}},
			want:  "[14:05:09] 自我介绍: 大家好",
		},
		{
			name:  "keywords",
			entry: Entry{Type: types.MemoryKeywords, Timestamp: ts, Content: map[string]any{"keywords": []any{"剪纸", "红色"}}},
			want:  "[14:05:09] 提取关键词: 剪纸、红色",
		},
		{
			name: "role switch",
			entry: Entry{Type: types.MemoryRoleSwitch, Timestamp: ts, Content: map[string]any{
				"previous_role": "craftsman", "new_role": "consumer",
			}},
			want: "[14:05:09] 角色转换: 传统手艺人 → 消费者",
		},
		{
			name:  "unknown short",
			entry: Entry{Type: "sketch", Timestamp: ts, Content: map[string]any{"content": "草图"}},
			want:  "[14:05:09] sketch: 草图",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.Format())
		})
	}
}

func TestEntry_FormatUnknownTypeTruncates(t *testing.T) {
	long := strings.Repeat("纸", 150)
	e := Entry{Type: "sketch", Timestamp: time.Now(), Content: map[string]any{"content": long}}

	out := e.Format()
	_, body, ok := strings.Cut(out, "sketch: ")
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("纸", 100)+"...", body)
}
