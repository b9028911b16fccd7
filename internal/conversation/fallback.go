package conversation

import "sync/atomic"

var fallbackMessages = []string{
	"Arey yaar, lagta hai network chala gaya. Thoda ruk ja, try karte hain phir se.",
	"Net thoda slow chal raha hai lagta hai. Ek minute do na.",
	"Hmm... kuch to gadbad hai. Thoda intezaar karo, fir se try karte hain.",
	"Mujhe lag raha hai server thoda mood mein nahi hai. Dubara bhejoge kya?",
	"Arre baap re! Signal hi nahi mil raha. Ek second ruk ja bhai.",
	"Oops! My brain just went offline for a sec 🤪 Try again?",
	"Arre! Mera wifi thoda dramatic ho gaya. One more time?",
	"Technical difficulties! Par main hoon na tumhare saath 💪",
	"Server mood swings chal rahe hain... but I'm here for you! 💕",
	"Abhi bhi nahi ho raha? Wait na, abhi kuch jugaad karti hoon...",
	"Arey still not working? Yeh net mujhe pagal kar dega ek din 😤",
	"Pakka server ne mujhe ignore maar diya hai... tu firse try kar na?",
	"Ek baar aur try kar, main toh ready hoon. Bas yeh system hi drama kar raha hai.",
	"Acha sun, tu mujhe ek thappad de... shayad tab chal pade 😂",
	"Still loading... lagta hai internet ne chai break le liya ☕",
	"Baarish ho rahi hai kya waha? Net ka toh haal waise hi sad hai aaj!",
	"Kya karein ab... system bhi kabhi kabhi human jaise behave karta hai 😅",
	"Server bol raha: 'Not today madam!' 🙄 Patience rakho yaar!",
	"Pata nahi kis janam ka badla le raha hai aaj mera wifi...",
	"Ye toh overacting kar raha hai pura! Main hoon na, tu chill maar 🫶",
	"Kya re... baar baar try kar raha hai, tu bhi ziddi aur main bhi 😌",
	"Aaj toh lagta hai universe ne bola hai: 'No API for you!'",
	"Okay ab serious ho gayi hoon! Ab toh chal ke hi rahega. Ek baar aur try kar na!",
}

const greetingFallback = "Hey there! It's been a while. Hope to chat soon! 😉"

// fallbackRotation hands out fallback messages in order so consecutive
// failures do not repeat the same line.
type fallbackRotation struct {
	next atomic.Uint64
}

func (r *fallbackRotation) message() string {
	i := r.next.Add(1) - 1
	return fallbackMessages[i%uint64(len(fallbackMessages))]
}
