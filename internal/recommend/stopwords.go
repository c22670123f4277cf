package recommend

import "strings"

// englishStopWords is the fixed English stop-word list excluded from term
// extraction. Keeping the list frozen in source makes vocabularies
// reproducible across builds.
var englishStopWords = buildStopWordSet(`
about above after again against all am an and any are aren as at be
because been before being below between both but by can cannot could
couldn did didn do does doesn doing don down during each few for
from further had hadn has hasn have haven having he her here hers herself
him himself his how if in into is isn it its itself just ll me more most
mustn my myself no nor not of off on once only or other ought our ours
ourselves out over own re same shan she should shouldn so some such than
that the their theirs them themselves then there these they this those
through to too under until up ve very was wasn we were weren what when
where which while who whom why with won would wouldn you your yours
yourself yourselves
also among amongst anyhow anyway around became become becomes becoming
beside besides beyond cannot could describe done due eight eleven else
elsewhere every everyone everything everywhere except fifteen fifty first
five forty four get give go has hence hereafter hereby herein hereupon
however hundred indeed interest last latter latterly least less many may
meanwhile might mine moreover mostly move much must namely neither never
nevertheless next nine nobody none noone nothing now nowhere often one
onto others otherwise per perhaps please put rather re said say says
second see seem seemed seeming seems serious several side since six sixty
somehow someone something sometime sometimes somewhere still ten therefore
therein thereupon third three thus toward towards twelve twenty two upon
us via well whatever whence whenever whereafter whereas whereby wherein
whereupon wherever whether whither whoever whole whose will within without
yet
`)

func buildStopWordSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

func isStopWord(term string) bool {
	_, ok := englishStopWords[term]
	return ok
}
