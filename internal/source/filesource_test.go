package source

import (
	"testing"

	"github.com/abema/go-mp4"
)

func TestExpandStscHandlesMultipleRuns(t *testing.T) {
	stsc := []mp4.StscEntry{
		{FirstChunk: 1, SamplesPerChunk: 2},
		{FirstChunk: 3, SamplesPerChunk: 1},
	}
	got := expandStsc(stsc, 4)
	want := []int{2, 2, 1, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d: expected %d samples, got %d", i, want[i], got[i])
		}
	}
}

func TestFlattenSampleTableMarksSyncSamplesAsKeyframes(t *testing.T) {
	sizes := []uint32{10, 10, 10}
	offsets := []uint64{1000, 2000}
	stsc := []mp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 2}, {FirstChunk: 2, SamplesPerChunk: 1}}
	stts := []mp4.SttsEntry{{SampleCount: 3, SampleDelta: 1}}
	sync := map[uint32]bool{1: true}

	entries := flattenSampleTable(sizes, offsets, stsc, stts, sync)
	if len(entries) != 3 {
		t.Fatalf("expected 3 flattened samples, got %d", len(entries))
	}
	if !entries[0].keyframe {
		t.Fatalf("expected sample 1 (in stss) to be a keyframe")
	}
	if entries[1].keyframe || entries[2].keyframe {
		t.Fatalf("expected samples 2 and 3 to not be keyframes")
	}
	if entries[0].offset != 1000 || entries[1].offset != 1010 {
		t.Fatalf("expected sequential offsets within the first chunk, got %d, %d", entries[0].offset, entries[1].offset)
	}
	if entries[2].offset != 2000 {
		t.Fatalf("expected the third sample to start the second chunk at offset 2000, got %d", entries[2].offset)
	}
	if entries[0].dts != 0 || entries[1].dts != 1 || entries[2].dts != 2 {
		t.Fatalf("expected strictly increasing dts 0,1,2, got %d,%d,%d", entries[0].dts, entries[1].dts, entries[2].dts)
	}
}

func TestFlattenSampleTableTreatsEmptySyncAsAllKeyframes(t *testing.T) {
	sizes := []uint32{5, 5}
	offsets := []uint64{0}
	stsc := []mp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 2}}
	entries := flattenSampleTable(sizes, offsets, stsc, nil, nil)
	for i, e := range entries {
		if !e.keyframe {
			t.Fatalf("sample %d: expected every sample to be a keyframe when stss is absent", i)
		}
	}
}
