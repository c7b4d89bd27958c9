package hostloc

import "regexp"

// Discuz post markup mixes the author's text with template furniture:
// edit notices, signature blocks, attachment payloads, rating tables and
// smiley wrappers. All of it is stripped before normalization so only the
// words the author wrote survive.
var discuzNoise = []*regexp.Regexp{
	// "本帖最后由 xxx 于 ... 编辑" banner
	regexp.MustCompile(`(?s)<i class="pstatus">.*?</i>`),
	// signature block
	regexp.MustCompile(`(?s)<div class="sign"[^>]*>.*?</div>`),
	// attachment payload tables and download prompts
	regexp.MustCompile(`(?s)<div class="attach[^"]*"[^>]*>.*?</div>`),
	regexp.MustCompile(`(?s)<dl class="tattl[^"]*"[^>]*>.*?</dl>`),
	regexp.MustCompile(`(?s)<p class="imgtitle[^"]*"[^>]*>.*?</p>`),
	// rating / credit tables appended under rated posts
	regexp.MustCompile(`(?s)<dl class="rate[^"]*"[^>]*>.*?</dl>`),
	regexp.MustCompile(`(?s)<div class="modact"[^>]*>.*?</div>`),
	// floor annotations inside quoted replies
	regexp.MustCompile(`<em class="floor">[^<]*</em>`),
	// script payloads survive inside .message on some templates
	regexp.MustCompile(`(?s)<script[^>]*>.*?</script>`),
}

// ignore_js_op wraps attachment images; the wrapper goes, the image stays.
var reIgnoreJSOp = regexp.MustCompile(`</?ignore_js_op>`)

func cleanDiscuz(html string) string {
	for _, re := range discuzNoise {
		html = re.ReplaceAllString(html, "")
	}
	return reIgnoreJSOp.ReplaceAllString(html, "")
}
