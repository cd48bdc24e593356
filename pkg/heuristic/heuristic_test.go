package heuristic_test

import (
	"strings"
	"testing"

	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/heuristic"
)

func docs(n int, content string) []core.Document {
	out := make([]core.Document, n)
	for i := range out {
		out[i] = core.Document{Index: i, Conteudo: content}
	}
	return out
}

func TestRunNeedsCurationByDocCount(t *testing.T) {
	dump := core.ProcessDump{NUP: "123", Documents: docs(10, "texto curto")}
	out := heuristic.Run(dump)
	if out.NeedsCuration {
		t.Fatalf("exactly 10 docs must not trigger curation, got needs_curation=true")
	}

	dump.Documents = docs(11, "texto curto")
	out = heuristic.Run(dump)
	if !out.NeedsCuration {
		t.Fatalf("11 docs must trigger curation")
	}
}

func TestRunNeedsCurationByCharCount(t *testing.T) {
	exact := strings.Repeat("a", 120000)
	dump := core.ProcessDump{NUP: "123", Documents: docs(1, exact)}
	out := heuristic.Run(dump)
	if out.NeedsCuration {
		t.Fatalf("exactly 120000 chars must not trigger curation")
	}

	over := strings.Repeat("a", 120001)
	dump.Documents = docs(1, over)
	out = heuristic.Run(dump)
	if !out.NeedsCuration {
		t.Fatalf("120001 chars must trigger curation")
	}
}

func TestClassifyPriority(t *testing.T) {
	alta := heuristic.Classify(core.Document{Conteudo: "DEFIRO o pedido no prazo de 10 dias"})
	if alta.Prioridade != core.PrioridadeAlta {
		t.Fatalf("expected ALTA priority, got %s", alta.Prioridade)
	}

	baixa := heuristic.Classify(core.Document{Conteudo: "ENCAMINHE-SE"})
	if baixa.Prioridade != core.PrioridadeBaixa {
		t.Fatalf("expected BAIXA priority for bare encaminhamento, got %s", baixa.Prioridade)
	}
}

func TestNormalizeTipoFallsBackToOutros(t *testing.T) {
	d := heuristic.Classify(core.Document{TipoRaw: "algo-desconhecido"})
	if d.Tipo != "OUTROS" {
		t.Fatalf("expected OUTROS for unknown tipo, got %s", d.Tipo)
	}
}
