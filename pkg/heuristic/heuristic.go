// Package heuristic implements the deterministic classification stage
// (§4.3 stage 2): no LLM call, pure regex/lookup-table tagging of each
// extracted document plus the needs_curation boundary decision. Grounded on
// original_source/plattargus-detalhar/app/schemas/doc_v1.py's TipoDocumento/
// TagTecnica vocabularies and the (body-stripped) docstring of
// pipeline/tags_detector.py, which names the patterns each tag stands for
// even though its regex bodies were not retrievable.
package heuristic

import (
	"regexp"
	"strings"

	"github.com/plattargus/detalhar/pkg/core"
)

// Tag names mirror TagTecnica in doc_v1.py.
const (
	TagComando      = "TEM_COMANDO"
	TagDecisao      = "TEM_DECISAO"
	TagPrazo        = "TEM_PRAZO"
	TagRecurso      = "TEM_RECURSO"
	TagMudaDestino  = "MUDA_DESTINO"
	TagRepetitivo   = "REPETITIVO"
	TagDeferimento  = "TEM_DEFERIMENTO"
	TagIndeferido   = "TEM_INDEFERIMENTO"
	TagArquivamento = "TEM_ARQUIVAMENTO"
	TagPublicacao   = "TEM_PUBLICACAO"
	TagEncerramento = "TEM_ENCERRAMENTO"
	TagDecreto      = "TEM_DECRETO"
	TagFavoravel    = "TEM_FAVORAVEL"
	TagOrgaoExterno = "ORGAO_EXTERNO"
)

// tagPattern pairs a tag with the regex that detects it. Patterns are
// case-insensitive and match on the normalized (upper-cased) document text.
type tagPattern struct {
	tag string
	re  *regexp.Regexp
}

var tagPatterns = []tagPattern{
	{TagComando, regexp.MustCompile(`DETERMINO|ENCAMINHE-SE|RETORNE-SE|CUMPRA-SE`)},
	{TagDecisao, regexp.MustCompile(`AUTORIZO|DEFIRO|INDEFIRO|ARQUIVE-SE`)},
	{TagPrazo, regexp.MustCompile(`NO PRAZO DE|EM\s+\d+\s+DIAS|AT[ÉE]\s+\d{1,2}/\d{1,2}`)},
	{TagRecurso, regexp.MustCompile(`RECURSO|RECONSIDERA[ÇC][ÃA]O|RETIFICA[ÇC][ÃA]O`)},
	{TagDeferimento, regexp.MustCompile(`DEFERID[OA]|AUTORIZAD[OA]`)},
	{TagIndeferido, regexp.MustCompile(`INDEFERID[OA]|NEGAD[OA]`)},
	{TagArquivamento, regexp.MustCompile(`ARQUIVE-SE|ARQUIVAMENTO`)},
	{TagPublicacao, regexp.MustCompile(`PUBLICAR|PUBLICA[ÇC][ÃA]O|BOLETIM GERAL|\bBG\b`)},
	{TagEncerramento, regexp.MustCompile(`TERMO DE ENCERRAMENTO`)},
	{TagDecreto, regexp.MustCompile(`DECRETO DO GOVERNADOR|DECRETO N[ºO°]`)},
	{TagFavoravel, regexp.MustCompile(`MANIFESTA[ÇC][ÃA]O FAVOR[ÁA]VEL|OPINO FAVORAVELMENTE`)},
	{TagOrgaoExterno, regexp.MustCompile(`\bTJAC\b|CASA CIVIL|\bSEAD\b`)},
}

// repetitivoRE flags encaminhamento-only documents that add no new content.
var repetitivoRE = regexp.MustCompile(`^\s*ENCAMINHE-SE\s*\.?\s*$`)

// DetectTags returns every technical tag whose pattern matches text.
func DetectTags(text string) []string {
	upper := strings.ToUpper(text)
	tags := make([]string, 0, 4)
	for _, p := range tagPatterns {
		if p.re.MatchString(upper) {
			tags = append(tags, p.tag)
		}
	}
	if repetitivoRE.MatchString(strings.TrimSpace(upper)) {
		tags = append(tags, TagRepetitivo)
	}
	return tags
}

// hasAny reports whether tags contains any of wanted.
func hasAny(tags []string, wanted ...string) bool {
	for _, t := range tags {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}

// classifyPriority derives the deterministic urgency bucket: ALTA for
// decision/deadline/closing/decree signals, BAIXA for pure repetition,
// MEDIA otherwise.
func classifyPriority(tags []string) core.DocPriority {
	if hasAny(tags, TagRepetitivo) {
		return core.PrioridadeBaixa
	}
	if hasAny(tags, TagDecisao, TagPrazo, TagEncerramento, TagDecreto, TagDeferimento, TagIndeferido) {
		return core.PrioridadeAlta
	}
	return core.PrioridadeMedia
}

// Classify annotates a single document with type, unit, tags and priority.
func Classify(doc core.Document) core.ClassifiedDocument {
	tags := DetectTags(doc.Conteudo)
	return core.ClassifiedDocument{
		Index:      doc.Index,
		Tipo:       normalizeTipo(doc.TipoRaw),
		Unidade:    doc.UnidadeRaw,
		Conteudo:   doc.Conteudo,
		Tags:       tags,
		Prioridade: classifyPriority(tags),
	}
}

// knownTipos mirrors TipoDocumento; anything else falls back to "OUTROS".
var knownTipos = map[string]bool{
	"DESPACHO": true, "REQUERIMENTO": true, "MEMORANDO": true, "OFICIO": true,
	"INFORMACAO": true, "PARECER": true, "NOTA_TECNICA": true, "DECISAO": true,
	"TERMO_ENCERRAMENTO": true, "ANEXO": true, "NOTA_BG": true, "PORTARIA": true,
	"ATA": true, "CERTIDAO": true, "DECRETO": true, "OUTROS": true,
}

func normalizeTipo(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if knownTipos[upper] {
		return upper
	}
	return "OUTROS"
}

// curationDocThreshold and curationCharThreshold are the §4.3 boundary
// constants. The comparisons are strict ">" — exactly 10 documents or
// exactly 120000 characters does not trigger curation.
const (
	curationDocThreshold  = 10
	curationCharThreshold = 120000
)

// Run classifies every document in dump and decides whether curation is
// needed, producing the heur_v2 artifact.
func Run(dump core.ProcessDump) core.HeuristicOutput {
	out := core.HeuristicOutput{
		NUP:        dump.NUP,
		Documentos: make([]core.ClassifiedDocument, 0, len(dump.Documents)),
	}
	for _, doc := range dump.Documents {
		classified := Classify(doc)
		out.Documentos = append(out.Documentos, classified)
		out.TotalChars += len(classified.Conteudo)
	}
	out.NeedsCuration = len(out.Documentos) > curationDocThreshold || out.TotalChars > curationCharThreshold
	return out
}
