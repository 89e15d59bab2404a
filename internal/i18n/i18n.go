// Package i18n holds the user-facing strings in English and Hindi.
package i18n

import (
	"strings"

	"github.com/m3rciful/funnelbot/internal/user"
)

// Key identifies one string.
type Key string

const (
	MainMenu           Key = "main_menu"
	BtnRegistration    Key = "btn_registration"
	BtnInstruction     Key = "btn_instruction"
	BtnChooseLanguage  Key = "btn_choose_language"
	BtnHelp            Key = "btn_help"
	BtnGetSignalMenu   Key = "btn_get_signal_menu"
	LanguageChanged    Key = "language_changed"
	ChooseLanguage     Key = "choose_language"
	Registration       Key = "registration"
	BtnRegisterNow     Key = "btn_register_now"
	BtnCheckRegister   Key = "btn_check_registration"
	BtnBackToMenu      Key = "btn_back_to_menu"
	RegistrationFailed Key = "registration_failed"
	Deposit            Key = "deposit"
	BtnDepositNow      Key = "btn_deposit_now"
	BtnCheckDeposit    Key = "btn_check_deposit"
	BtnBackToMain      Key = "btn_back_to_main"
	DepositPending     Key = "deposit_pending"
	AccessVerified     Key = "access_verified"
	AccessApproved     Key = "access_approved"
	BtnGetSignal       Key = "btn_get_signal"
	Instruction        Key = "instruction"
	Help               Key = "help"
	Revoked            Key = "revoked"
	UnknownInput       Key = "unknown_input"
	GenericError       Key = "generic_error"
)

var tables = map[user.Lang]map[Key]string{
	user.LangEN: {
		MainMenu:           "🎮 Main Menu",
		BtnRegistration:    "📱 Registration",
		BtnInstruction:     "📚 Instruction",
		BtnChooseLanguage:  "🌐 Choose Language",
		BtnHelp:            "🆘 Help",
		BtnGetSignalMenu:   "⚜️ GET SIGNAL ⚜️",
		LanguageChanged:    "✅ Language changed to English",
		ChooseLanguage:     "🌏 Choose your language:",
		Registration:       registrationEN,
		BtnRegisterNow:     "🔗 Register Now",
		BtnCheckRegister:   "🔁 Check Registration",
		BtnBackToMenu:      "⬅️ Back to Menu",
		RegistrationFailed: "❌ Registration not completed. Please complete registration and try again.",
		Deposit:            depositEN,
		BtnDepositNow:      "💰 Deposit Now",
		BtnCheckDeposit:    "🔁 Check Deposit",
		BtnBackToMain:      "🔙 Back to Main Menu",
		DepositPending:     "⏳ Deposit not confirmed yet. Please complete your deposit and try again.",
		AccessVerified:     "✅ Your deposit has been successfully verified! Access to signals is now open.",
		AccessApproved:     "✅ Admin approved: Direct signal access granted!",
		BtnGetSignal:       "🚀 Get Signal",
		Instruction:        instructionEN,
		Help:               "🧑‍💼 Contact support: {support}",
		Revoked:            "⚠️ Your signal access has been revoked by the admin.",
		UnknownInput:       "I don't understand that command. Please use the menu.",
		GenericError:       "⚠️ An error occurred. Please try again later.",
	},
	user.LangHI: {
		MainMenu:           "🎮 मुख्य मेनू",
		BtnRegistration:    "📱 पंजीकरण",
		BtnInstruction:     "📚 निर्देश",
		BtnChooseLanguage:  "🌐 भाषा चुनें",
		BtnHelp:            "🆘 मदद",
		BtnGetSignalMenu:   "⚜️ सिग्नल प्राप्त करें ⚜️",
		LanguageChanged:    "✅ भाषा हिंदी में बदल गई है",
		ChooseLanguage:     "🌏 अपनी भाषा चुनें:",
		Registration:       registrationHI,
		BtnRegisterNow:     "🔗 अभी पंजीकरण करें",
		BtnCheckRegister:   "🔁 पंजीकरण जांचें",
		BtnBackToMenu:      "⬅️ मेनू पर वापस जाएं",
		RegistrationFailed: "❌ पंजीकरण पूरा नहीं हुआ। कृपया पंजीकरण पूरा करें और पुनः प्रयास करें।",
		Deposit:            depositHI,
		BtnDepositNow:      "💰 अभी जमा करें",
		BtnCheckDeposit:    "🔁 जमा जांचें",
		BtnBackToMain:      "🔙 मुख्य मेनू पर वापस जाएं",
		DepositPending:     "⏳ जमा की पुष्टि अभी नहीं हुई है। कृपया जमा पूरा करें और पुनः प्रयास करें।",
		AccessVerified:     "✅ आपकी जमा राशि सफलतापूर्वक सत्यापित हो गई है! सिग्नल तक पहुंच अब खुली है।",
		AccessApproved:     "✅ व्यवस्थापक द्वारा अनुमोदित: सीधा सिग्नल एक्सेस प्रदान किया गया!",
		BtnGetSignal:       "🚀 सिग्नल प्राप्त करें",
		Instruction:        instructionHI,
		Help:               "🧑‍💼 सहायता से संपर्क करें: {support}",
		Revoked:            "⚠️ व्यवस्थापक द्वारा आपकी सिग्नल पहुंच रद्द कर दी गई है।",
		UnknownInput:       "मैं यह आदेश नहीं समझता। कृपया मेनू का उपयोग करें।",
		GenericError:       "⚠️ एक त्रुटि हुई। कृपया बाद में पुनः प्रयास करें।",
	},
}

// Text returns the string for key in lang, falling back to English.
func Text(lang user.Lang, key Key) string {
	if s, ok := tables[lang][key]; ok {
		return s
	}
	return tables[user.LangEN][key]
}

// Vars fills {name} placeholders.
type Vars map[string]string

// Render returns Text with placeholders replaced. Unknown placeholders are
// left as is.
func Render(lang user.Lang, key Key, vars Vars) string {
	s := Text(lang, key)
	if len(vars) == 0 {
		return s
	}
	pairs := make([]string, 0, len(vars)*2)
	for name, val := range vars {
		pairs = append(pairs, "{"+name+"}", val)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// Keys lists every key of the English table.
func Keys() []Key {
	out := make([]Key, 0, len(tables[user.LangEN]))
	for k := range tables[user.LangEN] {
		out = append(out, k)
	}
	return out
}

const registrationEN = `⚠️ To get the most out of this bot, you need to follow these steps:

1. Register a new account - if you already have an account, please leave it and register a new one.
2. When registering, use promo code: {promo}
3. After successful registration, you will automatically receive a message in the bot.`

const depositEN = `🥳 We are glad to welcome you to our community of successful players! The first step is completed - registration is complete.

🌐 Step 2 - Now it's time to top up your 1WIN account. The larger the deposit, the more opportunities you have to make a profit. Our subscribers earn 30-40% of their capital!

🔓 After replenishing your first deposit, you will automatically receive VIP access.

🚀 Get ready for an exciting journey into the world of profitable bets with FEEDOX - AI SOFTWARE!`

const instructionEN = `🤖The bot is based and trained on the OpenAi neural network cluster!
⚜️To train the bot, 🎰30,000 games were played.

Currently, bot users successfully generate 15-25% from their 💸 capital daily!

The bot is still undergoing checks and fixes! The accuracy of the bot is 92%!
To achieve maximum profit, follow this instruction:

🟢 1. Register at the betting office 1WIN ({link})
[If not opening, access with a VPN enabled (Sweden). The Play Market/App Store has many free services, for example: Vpnify, Planet VPN, Hotspot VPN, and so on!]
      ❗️Without registration an promocode, access to signals will not be opened❗️

🟢 2. Top up your account balance.
🟢 3. Go to the 1win games section and select the game.
🟢 4. Set the number of traps to three. This is important!
🟢 5. Request a signal from the bot and place bets according to the signals from the bot.
🟢 6. In case of an unsuccessful signal, we recommend doubling (x²) your bet to completely cover the loss with the next signal.`

const registrationHI = `⚠️ इस बॉट का अधिकतम लाभ उठाने के लिए, आपको इन चरणों का पालन करना होगा:

1. एक नया खाता पंजीकृत करें - यदि आपके पास पहले से ही एक खाता है, तो कृपया इसे छोड़ दें और एक नया खाता पंजीकृत करें।
2. नया खाता पंजीकृत करते समय, प्रचार कोड {promo} का उपयोग करना सुनिश्चित करें।
3. सफल पंजीकरण के बाद, आपको स्वचालित रूप से बॉट में एक अधिसूचना प्राप्त होगी।`

const depositHI = `🥳 सफल खिलाड़ियों के हमारे समुदाय में आपका स्वागत करते हुए हमें खुशी हो रही है! पहला चरण पूरा हो गया है - पंजीकरण पूरा हो गया है।

🌐 चरण 2 - अब आपके 1WIN खाते को टॉप अप करने का समय आ गया है। जमा राशि जितनी बड़ी होगी, आपके पास लाभ कमाने के उतने ही अधिक अवसर होंगे। हमारे ग्राहक अपनी पूंजी का 30-40% कमाते हैं!

🔓 अपनी पहली जमा राशि को फिर से भरने के बाद, आपको स्वचालित रूप से बॉट में एक अधिसूचना प्राप्त होगी।

🚀FEEDOX AI SOFTWARE- AI सॉफ्टवेयर के साथ लाभदायक सट्टेबाजी की दुनिया में एक रोमांचक यात्रा के लिए तैयार हो जाइए!`

const instructionHI = `🤖यह बॉट ओपनएआई न्यूरल नेटवर्क क्लस्टर पर आधारित और प्रशिक्षित है!
⚜️बॉट को प्रशिक्षित करने के लिए 🎰30,000 खेल खेले गए।

वर्तमान में, बॉट उपयोगकर्ता अपने 💸 पूंजी से दैनिक 15-25% सफलतापूर्वक उत्पन्न करते हैं!

बॉट अभी भी जांच और सुधार के अधीन है! बॉट की सटीकता 92% है!
अधिकतम लाभ प्राप्त करने के लिए, इस निर्देश का पालन करें:

🟢 1. बेटिंग ऑफिस 1WIN में रजिस्टर करें  1WIN {link}
[यदि नहीं खुलता है, तो एक VPN सक्षम (स्वीडन) के साथ पहुंचें। Play Market/App Store में कई मुफ्त सेवाएं हैं, उदाहरण के लिए: Vpnify, Planet VPN, Hotspot VPN, आदि!]
❗️रजिस्ट्रेशन और प्रोमो कोड के बिना, सिग्नल्स का एक्सेस नहीं खुलेगा❗️

🟢 2. अपने खाते का बैलेंस बढ़ाएँ।
🟢 3. 1win खेल अनुभाग पर जाएं और खेल का चयन करें।
🟢 4. जालों की संख्या तीन पर सेट करें। यह महत्वपूर्ण है!
🟢 5. बॉट से सिग्नल का अनुरोध करें और बॉट के सिग्नल के अनुसार दांव लगाएं।
🟢 6. यदि सिग्नल असफल होता है, तो हम आपकी दांव को पूरी तरह से कवर करने के लिए अगले सिग्नल के साथ दांव को दोगुना (x²) करने की सिफारिश करते हैं।`
