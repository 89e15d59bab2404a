package flow

import (
	"github.com/m3rciful/funnelbot/core/telegram/keyboard"
	"github.com/m3rciful/funnelbot/internal/funnel"
	"github.com/m3rciful/funnelbot/internal/i18n"
	"github.com/m3rciful/funnelbot/internal/notify"
	"github.com/m3rciful/funnelbot/internal/user"
)

// Callback uniques of the user-facing inline buttons.
const (
	CbRegister          = "register"
	CbInstruction       = "instruction"
	CbChooseLanguage    = "choose_language"
	CbHelp              = "help"
	CbGetSignal         = "get_signal"
	CbCheckRegistration = "check_registration"
	CbCheckDeposit      = "check_deposit"
	CbBackToMain        = "back_to_main"
	CbLangEN            = "lang_en"
	CbLangHI            = "lang_hi"
)

// Screen is a static view.
type Screen string

const (
	ScreenInstruction Screen = "instruction"
	ScreenLanguages   Screen = "languages"
	ScreenHelp        Screen = "help"
)

func (s *Service) text(rec user.Record, key i18n.Key) string {
	return i18n.Render(rec.Lang(), key, i18n.Vars{
		"link":    s.referral(rec.ID),
		"promo":   s.cfg.Links.Promo,
		"support": s.cfg.Links.Support,
	})
}

func (s *Service) btn(rec user.Record, key i18n.Key, unique string) keyboard.InlineBtn {
	return keyboard.InlineBtn{Text: i18n.Text(rec.Lang(), key), Unique: unique}
}

func photo(path string) *notify.Photo {
	if path == "" {
		return nil
	}
	return &notify.Photo{Path: path}
}

// Render builds the messages for a funnel response, in send order.
func (s *Service) Render(rec user.Record, resp funnel.Response) []notify.Message {
	lang := rec.Lang()
	back := []keyboard.InlineBtn{s.btn(rec, i18n.BtnBackToMain, CbBackToMain)}

	switch resp {
	case funnel.ResponseMainMenu:
		return []notify.Message{s.mainMenu(rec)}

	case funnel.ResponseLanguageChanged:
		return []notify.Message{
			{Text: i18n.Text(lang, i18n.LanguageChanged), Formats: []notify.Format{notify.FormatPlain}},
			s.mainMenu(rec),
		}

	case funnel.ResponseRegistration:
		return []notify.Message{{
			Text:  s.text(rec, i18n.Registration),
			Photo: photo(s.cfg.Images.Register),
			Buttons: [][]keyboard.InlineBtn{
				{{Text: i18n.Text(lang, i18n.BtnRegisterNow), URL: s.referral(rec.ID)}},
				{s.btn(rec, i18n.BtnCheckRegister, CbCheckRegistration)},
				{s.btn(rec, i18n.BtnBackToMenu, CbBackToMain)},
			},
		}}

	case funnel.ResponseRegistrationFailed:
		return []notify.Message{{
			Text: s.text(rec, i18n.RegistrationFailed),
			Buttons: [][]keyboard.InlineBtn{
				{{Text: i18n.Text(lang, i18n.BtnRegisterNow), URL: s.referral(rec.ID)}},
				{s.btn(rec, i18n.BtnCheckRegister, CbCheckRegistration)},
				{s.btn(rec, i18n.BtnBackToMenu, CbBackToMain)},
			},
		}}

	case funnel.ResponseDeposit, funnel.ResponseDepositPending:
		key, img := i18n.Deposit, photo(s.cfg.Images.Deposit)
		if resp == funnel.ResponseDepositPending {
			key, img = i18n.DepositPending, nil
		}
		return []notify.Message{{
			Text:  s.text(rec, key),
			Photo: img,
			Buttons: [][]keyboard.InlineBtn{
				{{Text: i18n.Text(lang, i18n.BtnDepositNow), URL: s.referral(rec.ID)}},
				{s.btn(rec, i18n.BtnCheckDeposit, CbCheckDeposit)},
				back,
			},
		}}

	case funnel.ResponseAccessApproved, funnel.ResponseAccessVerified:
		key := i18n.AccessVerified
		if resp == funnel.ResponseAccessApproved {
			key = i18n.AccessApproved
		}
		return []notify.Message{{
			Text: s.text(rec, key),
			Buttons: [][]keyboard.InlineBtn{
				{{Text: i18n.Text(lang, i18n.BtnGetSignal), WebApp: s.cfg.Links.WebApp}},
				back,
			},
		}}

	case funnel.ResponseRevoked:
		return []notify.Message{{Text: s.text(rec, i18n.Revoked), Formats: []notify.Format{notify.FormatPlain}}}
	}
	return nil
}

func (s *Service) mainMenu(rec user.Record) notify.Message {
	lang := rec.Lang()
	help := keyboard.InlineBtn{Text: i18n.Text(lang, i18n.BtnHelp), URL: s.cfg.Links.HelpURL}
	if help.URL == "" {
		help = s.btn(rec, i18n.BtnHelp, CbHelp)
	}
	return notify.Message{
		Text:  i18n.Text(lang, i18n.MainMenu),
		Photo: photo(s.cfg.Images.Main),
		Buttons: [][]keyboard.InlineBtn{
			{s.btn(rec, i18n.BtnRegistration, CbRegister)},
			{s.btn(rec, i18n.BtnInstruction, CbInstruction)},
			{s.btn(rec, i18n.BtnChooseLanguage, CbChooseLanguage)},
			{help},
			{s.btn(rec, i18n.BtnGetSignalMenu, CbGetSignal)},
		},
	}
}

func (s *Service) screen(rec user.Record, screen Screen) notify.Message {
	back := []keyboard.InlineBtn{s.btn(rec, i18n.BtnBackToMain, CbBackToMain)}
	switch screen {
	case ScreenLanguages:
		return notify.Message{
			Text: i18n.Text(rec.Lang(), i18n.ChooseLanguage),
			Buttons: [][]keyboard.InlineBtn{
				{{Text: "🇬🇧 English", Unique: CbLangEN}},
				{{Text: "🇮🇳 हिन्दी", Unique: CbLangHI}},
				back,
			},
		}
	case ScreenHelp:
		return notify.Message{Text: s.text(rec, i18n.Help), Formats: []notify.Format{notify.FormatPlain}}
	default:
		return notify.Message{
			Text:    s.text(rec, i18n.Instruction),
			Buttons: [][]keyboard.InlineBtn{back},
			Formats: []notify.Format{notify.FormatPlain},
		}
	}
}
