package search

import "math"

// BM25 Okapi parameters.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// bm25Model is an immutable BM25 Okapi model built over a token corpus.
// Terms whose IDF would be negative get epsilon times the average IDF.
type bm25Model struct {
	docFreqs []map[string]int
	docLens  []int
	avgdl    float64
	idf      map[string]float64
}

func newBM25Model(corpus [][]string) *bm25Model {
	m := &bm25Model{
		docFreqs: make([]map[string]int, len(corpus)),
		docLens:  make([]int, len(corpus)),
		idf:      make(map[string]float64),
	}

	// terms keeps first-appearance order so the IDF sum below is
	// reproducible for identical corpora.
	nd := make(map[string]int)
	var terms []string
	total := 0
	for i, doc := range corpus {
		freqs := make(map[string]int, len(doc))
		for _, tok := range doc {
			freqs[tok]++
			if freqs[tok] > 1 {
				continue
			}
			if nd[tok] == 0 {
				terms = append(terms, tok)
			}
			nd[tok]++
		}
		m.docFreqs[i] = freqs
		m.docLens[i] = len(doc)
		total += len(doc)
	}
	if len(corpus) > 0 {
		m.avgdl = float64(total) / float64(len(corpus))
	}

	n := float64(len(corpus))
	var idfSum float64
	var negative []string
	for _, tok := range terms {
		freq := nd[tok]
		idf := math.Log(n-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		m.idf[tok] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, tok)
		}
	}
	if len(m.idf) > 0 {
		eps := bm25Epsilon * idfSum / float64(len(m.idf))
		for _, tok := range negative {
			m.idf[tok] = eps
		}
	}
	return m
}

// scores returns the BM25 score of every document for query, in corpus
// order. Repeated query tokens contribute repeatedly.
func (m *bm25Model) scores(query []string) []float64 {
	out := make([]float64, len(m.docFreqs))
	for _, q := range query {
		idf, ok := m.idf[q]
		if !ok {
			continue
		}
		for i, freqs := range m.docFreqs {
			tf := float64(freqs[q])
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B
			if m.avgdl > 0 {
				norm += bm25B * float64(m.docLens[i]) / m.avgdl
			}
			out[i] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}
	return out
}

// matches reports whether document i contains any of the query tokens.
func (m *bm25Model) matches(i int, query []string) bool {
	for _, q := range query {
		if m.docFreqs[i][q] > 0 {
			return true
		}
	}
	return false
}
