package standard

var defaultStopWords = map[string][]string{
	"english": {
		"a", "about", "above", "after", "again", "against", "all", "am", "an", "and",
		"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
		"between", "both", "but", "by", "can", "could", "did", "do", "does", "doing",
		"down", "during", "each", "few", "for", "from", "further", "had", "has", "have",
		"having", "he", "her", "here", "hers", "herself", "him", "himself", "his", "how",
		"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me",
		"more", "most", "my", "myself", "no", "nor", "not", "now", "of", "off",
		"on", "once", "only", "or", "other", "our", "ours", "ourselves", "out", "over",
		"own", "same", "she", "should", "so", "some", "such", "than", "that", "the",
		"their", "theirs", "them", "themselves", "then", "there", "these", "they", "this", "those",
		"through", "to", "too", "under", "until", "up", "very", "was", "we", "were",
		"what", "when", "where", "which", "while", "who", "whom", "why", "will", "with",
		"would", "you", "your", "yours", "yourself", "yourselves",
	},
	"french": {
		"au", "aux", "avec", "ce", "ces", "dans", "de", "des", "du", "elle",
		"en", "et", "eux", "il", "je", "la", "le", "les", "leur", "lui",
		"ma", "mais", "me", "mes", "moi", "mon", "ne", "nos", "notre", "nous",
		"on", "ou", "par", "pas", "pour", "qu", "que", "qui", "sa", "se",
		"ses", "son", "sur", "ta", "te", "tes", "toi", "ton", "tu", "un",
		"une", "vos", "votre", "vous", "est", "sont", "été", "être",
	},
	"spanish": {
		"al", "algo", "como", "con", "de", "del", "el", "ella", "ellos", "en",
		"es", "esta", "este", "la", "las", "le", "les", "lo", "los", "mas",
		"me", "mi", "muy", "no", "nos", "o", "para", "pero", "por", "que",
		"se", "si", "sin", "sobre", "su", "sus", "también", "te", "tu", "un",
		"una", "uno", "unos", "y", "ya", "yo",
	},
	"german": {
		"aber", "alle", "als", "am", "an", "auch", "auf", "aus", "bei", "bin",
		"bis", "das", "dass", "dem", "den", "der", "des", "die", "doch", "du",
		"ein", "eine", "einem", "einen", "einer", "er", "es", "für", "hat", "ich",
		"ihr", "im", "in", "ist", "mit", "nach", "nicht", "noch", "nur", "oder",
		"sie", "sind", "so", "um", "und", "uns", "von", "vor", "war", "wie",
		"wir", "zu", "zum", "zur",
	},
}
