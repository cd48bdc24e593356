package llm

import "github.com/plattargus/detalhar/pkg/prompt"

// Prompt text ported from
// original_source/pipeline_v2/{curador_llm,analista_llm}.py's PROMPT_CURADOR
// and PROMPT_ANALISTA, translated from Python str.format ({nup}) to Go
// text/template ({{.NUP}}).

var curatorTemplate = prompt.MustNew("curator", `Você é um curador de processos administrativos. Selecione os 8-12 documentos ESSENCIAIS.

## PROCESSO: {{.NUP}}
## TOTAL: {{.TotalDocs}} documentos | {{.TotalChars}} caracteres

## DOCUMENTOS:
{{.DocList}}

## CRITÉRIOS:
1. SEMPRE INCLUIR: Demandante (1º doc), Despachos CMDGER/SUBCMD, Memorandos, Portarias
2. INCLUIR SE RELEVANTE: Pareceres, Ofícios externos
3. EXCLUIR: Encaminhamentos repetitivos, Anexos sem mérito

RETORNE JSON:
{"docs_selecionados": [1, 2, 5, 9], "resumo_rapido": "...", "confianca": 0.9}`)

const curatorSystemPrompt = "Você é um curador de processos administrativos. Responda APENAS JSON válido."

var analystTemplate = prompt.MustNew("analyst", `Analise os documentos do processo {{.NUP}} e extraia informações estruturadas.

## DOCUMENTOS:
{{.DocsText}}

## RETORNE JSON com os campos: interessado, pedido, situacao, fluxo, prazos,
## legislacao, resumo_executivo, alertas, sugestao, confianca.

REGRAS:
- Se não encontrar, use null
- Seja FIEL aos documentos
- Priorize documentos recentes`)

const analystSystemPrompt = "Você é um analista de processos administrativos. Responda APENAS JSON válido."
